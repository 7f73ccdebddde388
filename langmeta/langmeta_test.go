package langmeta

import (
	"sort"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "pt_br", want: "pt-BR"},
		{in: " EN-us ", want: "en-US"},
		{in: "ru", want: "ru"},
		{in: "", want: ""},
	}

	for _, tc := range cases {
		got := canonicalize(tc.in)
		if got != tc.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalKeepsAuto(t *testing.T) {
	if got := Canonical(" AUTO "); got != AutoDetect {
		t.Fatalf("Canonical(AUTO) = %q, want %q", got, AutoDetect)
	}
	if got := Canonical("zh_cn"); got != "zh-CN" {
		t.Fatalf("Canonical(zh_cn) = %q, want zh-CN", got)
	}
}

func TestResolve(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		got := Resolve("en-GB")
		if got.Name != "English (UK)" || got.Flag == "" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("normalized match", func(t *testing.T) {
		got := Resolve("pt_br")
		if got.Name != "Português (Brasil)" || got.Flag == "" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("base fallback", func(t *testing.T) {
		got := Resolve("fr-LU")
		if got.Name != "Français" || got.Flag != "🇫🇷" {
			t.Fatalf("unexpected fallback result: %#v", got)
		}
	})

	t.Run("unknown passthrough", func(t *testing.T) {
		got := Resolve("zz-ZZ")
		if got.Name != "zz-ZZ" || got.Flag != "" {
			t.Fatalf("unexpected unknown result: %#v", got)
		}
	})
}

func TestLabel(t *testing.T) {
	cases := []struct {
		lang     string
		fallback string
		want     string
	}{
		{"fr", "French", "🇫🇷 Français (fr)"},
		{"ru", "", "🇷🇺 Русский (ru)"},
		{"xx", "Klingon", "Klingon (xx)"},
		{"xx", "", "xx (xx)"},
		{"auto", "", "Auto-detect (auto)"},
	}
	for _, tc := range cases {
		if got := Label(tc.lang, tc.fallback); got != tc.want {
			t.Fatalf("Label(%q, %q) = %q, want %q", tc.lang, tc.fallback, got, tc.want)
		}
	}
}

func TestKnownAndCodes(t *testing.T) {
	if !Known("de") || !Known("de-AT") {
		t.Fatal("Known(de/de-AT) = false")
	}
	if Known("zz") {
		t.Fatal("Known(zz) = true")
	}
	codes := Codes()
	if len(codes) != len(Registry) || !sort.StringsAreSorted(codes) {
		t.Fatalf("Codes() = %v", codes)
	}
}
