package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunWithNoArgsPrintsUsageAndFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run(nil, &stdout, &stderr)
	if code != ExitError {
		t.Fatalf("expected ExitError, got %d", code)
	}
	if !strings.Contains(stderr.String(), "scout - repository-intelligence pipeline") {
		t.Fatalf("expected usage text on stderr, got %q", stderr.String())
	}
}

func TestRunHelpPrintsUsageAndSucceeds(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"help"}, &stdout, &stderr)
	if code != ExitSuccess {
		t.Fatalf("expected ExitSuccess, got %d", code)
	}
	if !strings.Contains(stdout.String(), "Stable commands:") {
		t.Fatalf("expected usage text on stdout, got %q", stdout.String())
	}
}

func TestRunVersionPrintsVersionAndSucceeds(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"version"}, &stdout, &stderr)
	if code != ExitSuccess {
		t.Fatalf("expected ExitSuccess, got %d", code)
	}
	if !strings.Contains(stdout.String(), "scout version") {
		t.Fatalf("expected version text on stdout, got %q", stdout.String())
	}
}

func TestFlagValueParsesEqualsSeparatedFlag(t *testing.T) {
	v, ok := flagValue([]string{"--root=/tmp/x", "--other=y"}, "root")
	if !ok || v != "/tmp/x" {
		t.Fatalf("expected /tmp/x, got %q ok=%v", v, ok)
	}
	if _, ok := flagValue([]string{"--other=y"}, "root"); ok {
		t.Fatal("expected missing flag to report ok=false")
	}
}

func TestFlagValuesSplitsOnComma(t *testing.T) {
	got := flagValues([]string{"--paths=a,b,c"}, "paths")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if flagValues(nil, "paths") != nil {
		t.Fatal("expected nil for missing flag")
	}
}

func TestFlagBoolHonorsNegationAndDefault(t *testing.T) {
	if !flagBool([]string{"--auto-review"}, "auto-review", false) {
		t.Fatal("expected true when flag present")
	}
	if flagBool([]string{"--no-auto-review"}, "auto-review", true) {
		t.Fatal("expected false when negated flag present")
	}
	if flagBool(nil, "auto-review", true) != true {
		t.Fatal("expected default to pass through when flag absent")
	}
}

func TestRootArgDefaultsToCurrentDirectory(t *testing.T) {
	if got := rootArg(nil); got != "." {
		t.Fatalf("expected '.', got %q", got)
	}
	if got := rootArg([]string{"--root=/some/path"}); got != "/some/path" {
		t.Fatalf("expected /some/path, got %q", got)
	}
}
