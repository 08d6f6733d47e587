package ids

import "testing"

func TestParse(t *testing.T) {
	owner, name, err := Parse("erigontech/erigon")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner != "erigontech" || name != "erigon" {
		t.Fatalf("got owner=%q name=%q", owner, name)
	}

	if _, _, err := Parse("not-a-repo-id"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestSafeName(t *testing.T) {
	if got := SafeName("erigontech/erigon"); got != "erigontech__erigon" {
		t.Fatalf("got %q", got)
	}
}

func TestShortCommit(t *testing.T) {
	if got := ShortCommit("deadbeef1234"); got != "deadbee" {
		t.Fatalf("got %q", got)
	}
	if got := ShortCommit("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
