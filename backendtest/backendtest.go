// Package backendtest implements an in-process fake of the leeplate
// backend. It serves the same three endpoints as the real server, counts
// calls, and can be scripted to fail or stall.
//
// Translation is fake: the translated text is the input wrapped as
// "[<dest>] <text>", and auto-detection resolves to DetectedLanguage.
// Audio is a short silent MP3 behind an ID3v2 tag naming (lang, text), so
// it plays and decodes like real speech while staying distinct per request.
package backendtest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultLanguages is the spoken-language list served unless replaced.
func DefaultLanguages() map[string]string {
	return map[string]string{
		"de":    "German",
		"en":    "English",
		"es":    "Spanish",
		"fr":    "French",
		"ja":    "Japanese",
		"ru":    "Russian",
		"zh-CN": "Chinese (Simplified)",
	}
}

// Backend is a scriptable fake backend.
type Backend struct {
	// DetectedLanguage is reported as src when source_language is "auto".
	DetectedLanguage string

	mu          sync.Mutex
	languages   map[string]string
	failNext    map[string]int
	latency     map[string]time.Duration
	audioFunc   func(text, lang string) []byte
	lastRequest map[string]*http.Request

	translateCalls atomic.Int64
	speakCalls     atomic.Int64
	languageCalls  atomic.Int64
}

// New returns a backend with the default language list and "fr" as the
// detected language.
func New() *Backend {
	return &Backend{
		DetectedLanguage: "fr",
		languages:        DefaultLanguages(),
		failNext:         make(map[string]int),
		latency:          make(map[string]time.Duration),
		lastRequest:      make(map[string]*http.Request),
	}
}

// silence is 20 MPEG-1 Layer III frames (128 kbit/s, 44.1 kHz, stereo)
// of digital silence, about half a second.
//
//go:embed testdata/silence.mp3
var silence []byte

// Audio returns the fake audio for (text, lang): an ID3v2.4 tag whose
// title is "lang:text", followed by the silent MP3 frames.
func Audio(text, lang string) []byte {
	title := append([]byte{0x03}, lang+":"+text...) // 0x03: UTF-8

	frame := make([]byte, 0, 10+len(title))
	frame = append(frame, "TIT2"...)
	frame = append(frame, synchsafe(len(title))...)
	frame = append(frame, 0, 0)
	frame = append(frame, title...)

	out := make([]byte, 0, 10+len(frame)+len(silence))
	out = append(out, "ID3"...)
	out = append(out, 4, 0, 0)
	out = append(out, synchsafe(len(frame))...)
	out = append(out, frame...)
	return append(out, silence...)
}

// synchsafe encodes n as an ID3v2 synchsafe integer.
func synchsafe(n int) []byte {
	return []byte{byte(n>>21) & 0x7f, byte(n>>14) & 0x7f, byte(n>>7) & 0x7f, byte(n) & 0x7f}
}

// Router returns the chi router serving the backend contract.
func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "User-Agent", "X-Request-ID"},
	}))

	r.Post("/translate", b.handleTranslate)
	r.Get("/speak", b.handleSpeak)
	r.Get("/spoken-languages", b.handleSpokenLanguages)

	return r
}

// Start serves the backend on a local test server. The caller closes it.
func (b *Backend) Start() *httptest.Server {
	return httptest.NewServer(b.Router())
}

// ---------------------------------------------------------------------------
// Scripting
// ---------------------------------------------------------------------------

// Endpoint names used by FailNext and SetLatency.
const (
	EndpointTranslate       = "translate"
	EndpointSpeak           = "speak"
	EndpointSpokenLanguages = "spoken-languages"
)

// FailNext makes the next n calls to endpoint answer 503.
func (b *Backend) FailNext(endpoint string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext[endpoint] = n
}

// SetLatency delays every call to endpoint by d.
func (b *Backend) SetLatency(endpoint string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency[endpoint] = d
}

// SetLanguages replaces the spoken-language list.
func (b *Backend) SetLanguages(langs map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.languages = langs
}

// SetAudioFunc replaces the audio generator; returning nil serves an
// empty body.
func (b *Backend) SetAudioFunc(fn func(text, lang string) []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audioFunc = fn
}

// LastRequest returns the most recent request to endpoint.
func (b *Backend) LastRequest(endpoint string) *http.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRequest[endpoint]
}

// TranslateCalls returns the number of /translate requests served.
func (b *Backend) TranslateCalls() int { return int(b.translateCalls.Load()) }

// SpeakCalls returns the number of /speak requests served.
func (b *Backend) SpeakCalls() int { return int(b.speakCalls.Load()) }

// LanguageCalls returns the number of /spoken-languages requests served.
func (b *Backend) LanguageCalls() int { return int(b.languageCalls.Load()) }

// enter records the request and applies scripted latency and failures.
// It reports false when the call was answered with a scripted failure.
func (b *Backend) enter(endpoint string, w http.ResponseWriter, r *http.Request) bool {
	b.mu.Lock()
	b.lastRequest[endpoint] = r
	delay := b.latency[endpoint]
	fail := b.failNext[endpoint] > 0
	if fail {
		b.failNext[endpoint]--
	}
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return false
		}
	}
	if fail {
		http.Error(w, "scripted failure", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

type translateBody struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

func (b *Backend) handleTranslate(w http.ResponseWriter, r *http.Request) {
	b.translateCalls.Add(1)
	if !b.enter(EndpointTranslate, w, r) {
		return
	}

	var body translateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	src := body.SourceLanguage
	if src == "auto" || src == "" {
		src = b.DetectedLanguage
	}

	writeJSON(w, map[string]string{
		"text":   fmt.Sprintf("[%s] %s", body.TargetLanguage, body.Text),
		"src":    src,
		"dest":   body.TargetLanguage,
		"origin": body.Text,
	})
}

func (b *Backend) handleSpeak(w http.ResponseWriter, r *http.Request) {
	b.speakCalls.Add(1)
	if !b.enter(EndpointSpeak, w, r) {
		return
	}

	text := r.URL.Query().Get("text")
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		http.Error(w, "missing lang", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	gen := b.audioFunc
	b.mu.Unlock()

	audio := Audio(text, lang)
	if gen != nil {
		audio = gen(text, lang)
	}

	w.Header().Set("Content-Type", "audio/mp3")
	_, _ = w.Write(audio)
}

func (b *Backend) handleSpokenLanguages(w http.ResponseWriter, r *http.Request) {
	b.languageCalls.Add(1)
	if !b.enter(EndpointSpokenLanguages, w, r) {
		return
	}

	b.mu.Lock()
	langs := make(map[string]string, len(b.languages))
	for k, v := range b.languages {
		langs[k] = v
	}
	b.mu.Unlock()

	writeJSON(w, map[string]any{"languages": langs})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
