package cachepath

import (
	"strings"
	"testing"
)

func TestLayoutConsistency(t *testing.T) {
	l := Layout{Root: "/tmp/scout-cache"}

	api := l.APICachePath("deadbeef")
	if !strings.HasPrefix(api, l.APIDir()) {
		t.Fatalf("api cache path %q not under %q", api, l.APIDir())
	}
	if !strings.HasSuffix(api, ".json") {
		t.Fatalf("api cache path %q missing .json suffix", api)
	}

	repo := l.RepoDir("owner", "name")
	if !strings.HasPrefix(repo, l.ReposDir()) {
		t.Fatalf("repo path %q not under %q", repo, l.ReposDir())
	}
	if !strings.Contains(repo, "owner") || !strings.Contains(repo, "name") {
		t.Fatalf("repo path %q missing owner/name", repo)
	}
}

func TestSessionDir(t *testing.T) {
	l := Layout{Root: "/tmp/scout-cache"}
	dir := l.SessionDir("owner__name", "2026-07-31", "cli", "abc1234", "def5678")
	if !strings.HasPrefix(dir, l.ReviewsDir()) {
		t.Fatalf("session dir %q not under reviews dir", dir)
	}
	if !strings.HasSuffix(dir, "abc1234_def5678") {
		t.Fatalf("session dir %q missing commit pair suffix", dir)
	}
}
