package apihttp

import (
	"encoding/json"
	"strings"
)

type EnvelopeKind int

const (
	EnvelopeUnknown EnvelopeKind = iota
	// {message: "..."}
	EnvelopeMessage
	// {message: "<generic phrase>", error: "..."}
	EnvelopeDetail
	// {error: ["...", "..."]} or {message: ["...", "..."]}
	EnvelopeList
)

// genericPhrases are HTTP reason phrases that carry no information for the user.
var genericPhrases = map[string]struct{}{
	"not found":             {},
	"bad request":           {},
	"unauthorized":          {},
	"forbidden":             {},
	"conflict":              {},
	"internal server error": {},
}

type errorEnvelope struct {
	Kind     EnvelopeKind
	Message  string
	Messages []string
}

type rawErrorBody struct {
	Message json.RawMessage `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// decodeErrorEnvelope classifies a backend error body into one of the known shapes.
func decodeErrorEnvelope(body []byte) errorEnvelope {
	var raw rawErrorBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return errorEnvelope{Kind: EnvelopeUnknown}
	}

	message, messageIsString := decodeString(raw.Message)
	detail, detailIsString := decodeString(raw.Error)

	if messageIsString && message != "" {
		if isGenericPhrase(message) {
			if detailIsString && detail != "" {
				return errorEnvelope{Kind: EnvelopeDetail, Message: detail}
			}
			if list := decodeStrings(raw.Error); len(list) > 0 {
				return errorEnvelope{Kind: EnvelopeList, Messages: list}
			}
		}
		return errorEnvelope{Kind: EnvelopeMessage, Message: message}
	}

	if list := decodeStrings(raw.Error); len(list) > 0 {
		return errorEnvelope{Kind: EnvelopeList, Messages: list}
	}
	if list := decodeStrings(raw.Message); len(list) > 0 {
		return errorEnvelope{Kind: EnvelopeList, Messages: list}
	}

	if detailIsString && detail != "" {
		return errorEnvelope{Kind: EnvelopeMessage, Message: detail}
	}

	return errorEnvelope{Kind: EnvelopeUnknown}
}

func (e errorEnvelope) Text(fallback string) string {
	switch e.Kind {
	case EnvelopeMessage, EnvelopeDetail:
		return e.Message
	case EnvelopeList:
		return strings.Join(e.Messages, ". ")
	default:
		return fallback
	}
}

func isGenericPhrase(message string) bool {
	_, ok := genericPhrases[strings.ToLower(strings.TrimSpace(message))]
	return ok
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func decodeStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}

	out := make([]string, 0, len(list))
	for _, item := range list {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
