package normalize

import (
	"testing"
)

func TestBaseName(t *testing.T) {
	cases := map[string]string{
		"/d/x.tar":                    "x.tar",
		"run1/sub/f1.fast5":           "f1.fast5",
		"f1.fast5":                    "f1.fast5",
		"/trailing/":                  "",
		"":                            "",
		"/data/a b/with space.fast5": "with space.fast5",
	}
	for in, want := range cases {
		if got := BaseName(in); got != want {
			t.Fatalf("BaseName(%q)=%q; want %q", in, got, want)
		}
	}
}

func TestFirstField(t *testing.T) {
	cases := map[string]string{
		"r1 runid=abc": "r1",
		"r1\t100\t+":   "r1",
		"  r1  x":      "r1",
		"r1":           "r1",
		"":             "",
		"   ":          "",
	}
	for in, want := range cases {
		if got := FirstField(in); got != want {
			t.Fatalf("FirstField(%q)=%q; want %q", in, got, want)
		}
	}
}

func TestTwoFields(t *testing.T) {
	a, b, ok := TwoFields("a.fast5\tr1\t0\t12.5")
	if !ok || a != "a.fast5" || b != "r1" {
		t.Fatalf("got %q %q %v", a, b, ok)
	}
	a, b, ok = TwoFields("  a.fast5   r1")
	if !ok || a != "a.fast5" || b != "r1" {
		t.Fatalf("got %q %q %v", a, b, ok)
	}
	if _, _, ok := TwoFields("only"); ok {
		t.Fatalf("expected !ok for single field")
	}
	if _, _, ok := TwoFields(""); ok {
		t.Fatalf("expected !ok for blank line")
	}
}

func TestHeaderID(t *testing.T) {
	cases := map[string]string{
		"@r1 runid=abc read=3": "r1",
		"@r2":                  "r2",
		"r3 x":                 "r3",
		"":                     "",
	}
	for in, want := range cases {
		if got := HeaderID(in); got != want {
			t.Fatalf("HeaderID(%q)=%q; want %q", in, got, want)
		}
	}
}
