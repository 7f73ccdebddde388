package backendtest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestTranslateAutoDetect(t *testing.T) {
	b := New()
	srv := b.Start()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/translate", "application/json",
		strings.NewReader(`{"text":"salut","source_language":"auto","target_language":"en"}`))
	if err != nil {
		t.Fatalf("POST /translate: %v", err)
	}
	defer resp.Body.Close()

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got["text"] != "[en] salut" || got["src"] != "fr" || got["dest"] != "en" || got["origin"] != "salut" {
		t.Fatalf("response = %v", got)
	}
	if b.TranslateCalls() != 1 {
		t.Fatalf("TranslateCalls() = %d, want 1", b.TranslateCalls())
	}
}

func TestFailNextThenRecover(t *testing.T) {
	b := New()
	b.FailNext(EndpointSpeak, 1)
	srv := b.Start()
	defer srv.Close()

	speak := srv.URL + "/speak?" + url.Values{"text": {"hi"}, "lang": {"en"}}.Encode()

	resp, err := http.Get(speak)
	if err != nil {
		t.Fatalf("GET /speak: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("first status = %d, want 503", resp.StatusCode)
	}

	resp, err = http.Get(speak)
	if err != nil {
		t.Fatalf("GET /speak: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != string(Audio("hi", "en")) {
		t.Fatalf("second response = %d %q", resp.StatusCode, body)
	}
}

func TestSetLanguages(t *testing.T) {
	b := New()
	b.SetLanguages(map[string]string{"ja": "Japanese"})
	srv := b.Start()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/spoken-languages")
	if err != nil {
		t.Fatalf("GET /spoken-languages: %v", err)
	}
	defer resp.Body.Close()

	var doc struct {
		Languages map[string]string `json:"languages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(doc.Languages) != 1 || doc.Languages["ja"] != "Japanese" {
		t.Fatalf("languages = %v", doc.Languages)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := New().Start()
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/translate", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /translate: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestAudioIsTaggedMP3(t *testing.T) {
	en := Audio("hello", "en")
	de := Audio("hello", "de")

	if !bytes.HasPrefix(en, []byte("ID3\x04")) {
		t.Fatalf("Audio() prefix = %q, want ID3v2.4 tag", en[:4])
	}
	if !bytes.Contains(en, []byte("en:hello")) {
		t.Fatal("Audio() tag does not name the request")
	}
	if !bytes.HasSuffix(en, silence) || !bytes.HasSuffix(de, silence) {
		t.Fatal("Audio() does not end with the MP3 frames")
	}
	if bytes.Equal(en, de) {
		t.Fatal("Audio() is identical for different languages")
	}
	if len(silence) == 0 || silence[0] != 0xFF || silence[1]&0xE0 != 0xE0 {
		t.Fatal("embedded MP3 does not start with a frame sync")
	}
}
