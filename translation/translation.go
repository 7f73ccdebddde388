// Package translation defines the request/result model shared by the
// session controller and the backend client.
package translation

import (
	"encoding/json"
	"strings"
)

// AutoDetect is the source language value asking the backend to detect
// the language of the input text.
const AutoDetect = "auto"

// Request is a single translation request as built from the form fields.
// Two requests are equal when all three fields are equal.
type Request struct {
	Text   string `json:"text"`
	Source string `json:"source_language"`
	Target string `json:"target_language"`
}

// IsEmpty reports whether the request carries no translatable text.
// Whitespace-only input counts as empty.
func (r Request) IsEmpty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// IsAutoDetect reports whether the source language is left to the backend.
func (r Request) IsAutoDetect() bool {
	return r.Source == AutoDetect
}

// Fingerprint returns the serialized form of the request, used to detect
// unchanged input between triggers. Equal requests always produce equal
// fingerprints.
func (r Request) Fingerprint() string {
	data, err := json.Marshal(r)
	if err != nil {
		// Marshaling three strings cannot fail; keep a stable fallback anyway.
		return r.Source + "\x00" + r.Target + "\x00" + r.Text
	}
	return string(data)
}

// Result is the backend's answer to a Request.
type Result struct {
	// Origin is the input text as echoed by the backend.
	Origin string `json:"origin"`
	// Text is the translated text.
	Text string `json:"text"`
	// Source is the resolved source language. It differs from the
	// request's source when auto-detection happened.
	Source string `json:"src"`
	// Target is the target language code.
	Target string `json:"dest"`
}
