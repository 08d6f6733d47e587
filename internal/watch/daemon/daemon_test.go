package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/vcsutil"
	"github.com/scoutforge/scout/internal/watch/change"
	"github.com/scoutforge/scout/internal/watch/review"
	"github.com/scoutforge/scout/internal/watch/session"
	"github.com/scoutforge/scout/internal/watch/store"
)

type scriptedRunner struct {
	head string
}

func (r *scriptedRunner) Run(ctx context.Context, dir string, env []string, argv ...string) (procexec.Result, error) {
	joined := strings.Join(argv, " ")
	switch {
	case strings.Contains(joined, "ls-remote"):
		return procexec.Result{Stdout: r.head + "\trefs/heads/main\n"}, nil
	default:
		return procexec.Result{}, nil
	}
}

func newTestDriver(t *testing.T, head string) (change.Driver, *store.Store) {
	t.Helper()
	runner := &scriptedRunner{head: head}
	git := vcsutil.New(runner)
	layout := cachepath.Layout{Root: t.TempDir()}
	st, err := store.Open(filepath.Join(t.TempDir(), "scout.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	driver := change.Driver{
		Store:    st,
		Git:      git,
		Layout:   layout,
		Sessions: session.Builder{Git: git, Layout: layout, Store: st},
		Review:   review.Launcher{Runner: runner, Store: st},
	}
	return driver, st
}

func TestHealthEndpointReportsOK(t *testing.T) {
	driver, _ := newTestDriver(t, "headsha1234567")
	d := &Daemon{
		Driver:   driver,
		LockPath: filepath.Join(t.TempDir(), "watch.lock"),
	}
	d.withDefaults()

	srv := httptest.NewServer(d.router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %+v", body)
	}
}

func TestStatusEndpointReflectsRunOnceRecording(t *testing.T) {
	driver, _ := newTestDriver(t, "headsha1234567")
	d := &Daemon{
		Driver:   driver,
		LockPath: filepath.Join(t.TempDir(), "watch.lock"),
	}
	d.withDefaults()
	d.runOnceAndRecord(context.Background())

	srv := httptest.NewServer(d.router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.RunCount != 1 {
		t.Fatalf("expected run count 1, got %d", status.RunCount)
	}
	if status.LastRunAt.IsZero() {
		t.Fatal("expected last run timestamp to be set")
	}
}

func TestStartAndStopLifecycle(t *testing.T) {
	driver, _ := newTestDriver(t, "headsha1234567")
	d := &Daemon{
		Driver:     driver,
		LockPath:   filepath.Join(t.TempDir(), "watch.lock"),
		PIDPath:    filepath.Join(t.TempDir(), "scout.pid"),
		Interval:   time.Hour,
		ChangeOpts: change.Options{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		count := d.status.RunCount
		d.mu.Unlock()
		if count > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	d.mu.Lock()
	count := d.status.RunCount
	d.mu.Unlock()
	if count == 0 {
		t.Fatal("expected at least one recorded run shortly after Start")
	}

	d.Stop()
}
