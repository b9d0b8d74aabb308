package events

import "testing"

func TestNormalizePool(t *testing.T) {
	cases := map[string]string{
		"0xABCDEF1234": "abcdef1234",
		"abcdef1234":   "abcdef1234",
		"0XABCDEF1234": "abcdef1234",
		"":              "",
	}
	for in, want := range cases {
		if got := NormalizePool(in); got != want {
			t.Errorf("NormalizePool(%q) = %q, want %q", in, got, want)
		}
	}
}
