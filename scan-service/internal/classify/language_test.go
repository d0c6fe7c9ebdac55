package classify

import "testing"

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"":         "English",
		"English":  "English",
		"en-US":    "English",
		"ja":       "日本語",
		"ja-JP":    "日本語",
		"Japanese": "日本語",
		"日本語":      "日本語",
		"Español":  "Español",
	}
	for in, want := range tests {
		if got := NormalizeLanguage(in); got != want {
			t.Fatalf("NormalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLanguageFromAcceptHeader(t *testing.T) {
	if got := LanguageFromAcceptHeader("ja-JP,ja;q=0.9,en;q=0.8"); got != "日本語" {
		t.Fatalf("expected Japanese, got %q", got)
	}
	if got := LanguageFromAcceptHeader(""); got != "English" {
		t.Fatalf("expected default, got %q", got)
	}
	if got := LanguageFromAcceptHeader("fr-FR"); got != "English" {
		t.Fatalf("unsupported language should fall back, got %q", got)
	}
}
