package apitest

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestServerLoginAndPagedList(t *testing.T) {
	srv := NewServer(t)
	srv.AddUser(t, "admin@daycare.test", "secret", map[string]interface{}{"id": "u-1", "email": "admin@daycare.test"})
	srv.Seed("children",
		map[string]interface{}{"id": "1", "name": "Ann"},
		map[string]interface{}{"id": "2", "name": "Ben"},
		map[string]interface{}{"id": "3", "name": "Cid"},
	)

	resp, err := http.Post(srv.APIURL()+"/auth/login", "application/json",
		strings.NewReader(`{"email":"admin@daycare.test","password":"secret"}`))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}

	var login struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.AccessToken == "" {
		t.Fatal("expected access token")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.APIURL()+"/children?page=2&take=2&order=DESC", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	listResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()

	var list struct {
		Data []map[string]interface{} `json:"data"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Meta.Total != 3 || len(list.Data) != 1 || list.Data[0]["id"] != "1" {
		t.Fatalf("unexpected page: %+v", list)
	}
}

func TestServerRejectsMissingToken(t *testing.T) {
	srv := NewServer(t)

	resp, err := http.Get(srv.APIURL() + "/auth/profile")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestServerCannedFailureIsConsumedOnce(t *testing.T) {
	srv := NewServer(t)
	srv.FailNext(http.MethodPost, "/auth/login", http.StatusInternalServerError, `{"message":"boom"}`)

	for i, want := range []int{http.StatusInternalServerError, http.StatusUnauthorized} {
		resp, err := http.Post(srv.APIURL()+"/auth/login", "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("attempt %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}
}
