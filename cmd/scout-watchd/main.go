// Command scout-watchd is the optional standalone periodic watch daemon
// (spec.md §5 Non-goals: "no long-running daemon beyond an optional
// periodic driver that still uses the one-shot watch operation
// internally"). It wraps watch/change.Driver.RunOnce on a ticker, under
// the watch lock, and exposes a loopback-only health/status endpoint.
//
// Usage:
//
//	scout-watchd                 Start the daemon in the foreground
//	scout-watchd status          Report whether a daemon appears to be running
//	scout-watchd stop            Signal a running daemon to stop
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/config"
	"github.com/scoutforge/scout/internal/logger"
	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/vcsutil"
	"github.com/scoutforge/scout/internal/watch/change"
	"github.com/scoutforge/scout/internal/watch/daemon"
	"github.com/scoutforge/scout/internal/watch/review"
	"github.com/scoutforge/scout/internal/watch/session"
	"github.com/scoutforge/scout/internal/watch/store"
)

func main() {
	args := os.Args[1:]
	cmd := "start"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
	}

	var err error
	switch cmd {
	case "start":
		err = cmdStart()
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`scout-watchd - periodic watch daemon

Usage:
  scout-watchd [start]   Start the daemon in the foreground (default)
  scout-watchd status    Report whether a daemon appears to be running
  scout-watchd stop      Signal a running daemon to stop`)
}

func pidFilePath(layout cachepath.Layout) string {
	return layout.WatchDir() + "/scout-watchd.pid"
}

func cmdStart() error {
	globalPath, err := config.DefaultGlobalConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(globalPath, ".scoutrc.json")
	if err != nil {
		return err
	}
	logger.Setup(cfg)
	defer logger.Stop()

	layout, err := cachepath.NewLayout(cachepath.DefaultResolver{})
	if err != nil {
		return err
	}
	if err := layout.EnsureAll(); err != nil {
		return err
	}

	git := vcsutil.New(procexec.OSRunner{})
	st, err := store.Open(layout.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	driver := change.Driver{
		Store:    st,
		Git:      git,
		Layout:   layout,
		Sessions: session.Builder{Git: git, Layout: layout, Store: st},
		Review:   review.Launcher{Runner: procexec.OSRunner{}, Store: st},
	}

	d := &daemon.Daemon{
		Driver:     driver,
		LockPath:   layout.LockPath(),
		PIDPath:    pidFilePath(layout),
		ConfigPath: globalPath,
		Interval:   time.Duration(cfg.Watch.DefaultPollHours) * time.Hour,
		ChangeOpts: change.Options{
			Review: review.Options{
				ReviewerCommand: cfg.Session.ReviewerCommand,
				Timeout:         time.Duration(cfg.Session.ReviewerTimeoutSecs) * time.Second,
			},
		},
	}

	if err := d.Start(context.Background()); err != nil {
		return err
	}
	fmt.Println("scout-watchd started")
	d.Wait()
	return nil
}

func cmdStatus() error {
	layout, err := cachepath.NewLayout(cachepath.DefaultResolver{})
	if err != nil {
		return err
	}
	pid, running := readPID(pidFilePath(layout))
	if running {
		fmt.Printf("scout-watchd: running (PID %d)\n", pid)
	} else {
		fmt.Println("scout-watchd: stopped")
	}
	return nil
}

func cmdStop() error {
	layout, err := cachepath.NewLayout(cachepath.DefaultResolver{})
	if err != nil {
		return err
	}
	pid, running := readPID(pidFilePath(layout))
	if !running {
		fmt.Println("scout-watchd is not running")
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	fmt.Printf("scout-watchd (PID %d) signaled to stop\n", pid)
	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}
