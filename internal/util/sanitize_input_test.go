package util

import "testing"

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}

func TestContainsSuspicious(t *testing.T) {
	tests := map[string]bool{
		"Jane Doe":             false,
		"<b>Jane</b>":          true,
		"{{ .Secret }}":        true,
		"Robert'); DROP TABLE": false,
		"img onerror=alert(1)": true,
		"Price is $5":          true,
	}
	for input, want := range tests {
		if got := ContainsSuspicious(input); got != want {
			t.Fatalf("ContainsSuspicious(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := SanitizeInput("  <Jane> "); got != "&lt;Jane&gt;" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
}
