package translation

import "testing"

func TestFingerprintStructuralEquality(t *testing.T) {
	a := Request{Text: "hello", Source: "auto", Target: "fr"}
	b := Request{Text: "hello", Source: "auto", Target: "fr"}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("equal requests produced different fingerprints: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}

	variants := []Request{
		{Text: "hello!", Source: "auto", Target: "fr"},
		{Text: "hello", Source: "en", Target: "fr"},
		{Text: "hello", Source: "auto", Target: "de"},
	}
	for _, v := range variants {
		if v.Fingerprint() == a.Fingerprint() {
			t.Errorf("Fingerprint(%+v) collides with %+v", v, a)
		}
	}
}

func TestFingerprintIsSerializedForm(t *testing.T) {
	r := Request{Text: "hi", Source: "en", Target: "ru"}
	want := `{"text":"hi","source_language":"en","target_language":"ru"}`
	if got := r.Fingerprint(); got != want {
		t.Fatalf("Fingerprint() = %q, want %q", got, want)
	}
}

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   \n\t", true},
		{"a", false},
		{" a ", false},
	}
	for _, tc := range cases {
		if got := (Request{Text: tc.text}).IsEmpty(); got != tc.want {
			t.Fatalf("IsEmpty(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestIsAutoDetect(t *testing.T) {
	if !(Request{Source: AutoDetect}).IsAutoDetect() {
		t.Fatal("IsAutoDetect() = false for auto source")
	}
	if (Request{Source: "fr"}).IsAutoDetect() {
		t.Fatal("IsAutoDetect() = true for explicit source")
	}
}
