package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Minute},
		{"30", 30 * time.Second},
		{"168h", 168 * time.Hour},
		{"nonsense", time.Minute},
	}
	for _, tc := range tests {
		t.Setenv("INKWELL_TEST_DURATION", tc.raw)
		if got := Duration("INKWELL_TEST_DURATION", time.Minute); got != tc.want {
			t.Fatalf("Duration(%q): want=%s got=%s", tc.raw, tc.want, got)
		}
	}
}

func TestListAndBool(t *testing.T) {
	t.Setenv("INKWELL_TEST_LIST", " a@x.io, ,b@x.io ")
	got := List("INKWELL_TEST_LIST")
	if len(got) != 2 || got[0] != "a@x.io" || got[1] != "b@x.io" {
		t.Fatalf("List: got=%v", got)
	}
	t.Setenv("INKWELL_TEST_BOOL", "off")
	if Bool("INKWELL_TEST_BOOL", true) {
		t.Fatalf("Bool: off should be false")
	}
	t.Setenv("INKWELL_TEST_INT", "x")
	if Int("INKWELL_TEST_INT", 7) != 7 {
		t.Fatalf("Int: invalid value should fall back")
	}
}
