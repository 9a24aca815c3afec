package util

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ana@parroquia.org", "a…@p…org"},
		{"A@X.com", "a@x.com"},
		{"  Maria.Lopez@Example.COM ", "m…@e…com"},
		{"", ""},
		{"ab", "***"},
		{"noemail", "n…l"},
	}
	for _, c := range cases {
		if got := MaskEmail(c.in); got != c.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
