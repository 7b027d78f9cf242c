package search

import "testing"

func TestSnippet(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short text untouched", "hello world", 20, "hello world"},
		{"exact length untouched", "hello", 5, "hello"},
		{"zero disables truncation", "hello world again and again", 0, "hello world again and again"},
		{"whitespace collapsed", "  hello \t world \n", 20, "hello world"},
		{"cuts at word boundary", "hello world again", 13, "hello world…"},
		{"window ends on boundary", "hello world again", 11, "hello world…"},
		{"no space hard cut", "abcdefgh", 4, "abcd…"},
		{"unicode runes", "αβγδεζηθ", 3, "αβγ…"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Snippet(tc.in, tc.max); got != tc.want {
				t.Fatalf("Snippet(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}
