package textutil

import "testing"

func TestSlug(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Landing Page", "landing_page"},
		{"Crème Brûlée", "creme_brulee"},
		{"  Pricing / Plans  ", "pricing_plans"},
		{"FAQ", "faq"},
		{"multi--dash -- page", "multi_dash_page"},
		{"", ""},
		{"___", ""},
	}
	for _, c := range cases {
		if got := Slug(c.in); got != c.want {
			t.Errorf("Slug(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
