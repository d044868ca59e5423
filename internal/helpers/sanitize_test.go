package helpers

import "testing"

func TestStripTags_RemovesTagsAndScripts(t *testing.T) {
	input := `<p>Hello <strong>world</strong><script>alert('x')</script></p>`
	got := StripTags(input)
	want := "Hello world"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCleanText_CollapsesWhitespaceAndEntities(t *testing.T) {
	input := "  Rust &amp; Go\n\n<b>tutorial</b>\t guide "
	got := CleanText(input)
	want := "Rust & Go tutorial guide"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo wörld", 5, "héllo"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestEllipsize(t *testing.T) {
	if got := Ellipsize("research", 3); got != "res…" {
		t.Fatalf("expected %q, got %q", "res…", got)
	}
	if got := Ellipsize("go", 3); got != "go" {
		t.Fatalf("expected untouched input, got %q", got)
	}
}
