package model

type Session struct {
	AccessToken string
	User        User
}
