// Package cli implements the command surface of spec.md §6: six stable
// commands (scan, discover, clone, validate, focus, compare) and seven
// experimental ones (track, watch/add, watch/list, watch/remove,
// watch/run-once, session, review). Each command is a thin wrapper around
// a pipeline stage or watch-subsystem operation: it loads the prior
// artifact, calls the stage, and writes its own artifact, so the stage
// logic itself stays unit-testable without a filesystem (SPEC_FULL.md §4).
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/scoutforge/scout/internal/cachepath"
	"github.com/scoutforge/scout/internal/config"
	"github.com/scoutforge/scout/internal/logger"
	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/scouterr"
	"github.com/scoutforge/scout/internal/vcsutil"
)

// Exit codes (spec.md §6): 0 success; 1 invocation or validation error;
// reviewer exit codes pass through for the review command.
const (
	ExitSuccess = 0
	ExitError   = 1
)

// Env bundles the shared collaborators every command needs: the merged
// configuration, the resolved cache layout, a hardened VCS wrapper, and
// output streams. Building it once in Run keeps individual command
// functions free of global state.
type Env struct {
	Cfg     *config.Config
	Layout  cachepath.Layout
	Git     vcsutil.Git
	Stdout  io.Writer
	Stderr  io.Writer
	OutDir  string // project-local output directory, default ".scout"
}

// Run dispatches argv (without the program name) to a command and returns
// the process exit code. It never calls os.Exit itself so it stays
// testable.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitError
	}

	cmd := args[0]
	rest := args[1:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage(stdout)
		return ExitSuccess
	}
	if cmd == "version" || cmd == "-v" || cmd == "--version" {
		fmt.Fprintln(stdout, "scout version dev")
		return ExitSuccess
	}

	env, err := newEnv(stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	defer logger.Stop()

	ctx := context.Background()

	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return ExitError
	}

	code, err := handler(ctx, env, rest)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if code == ExitSuccess {
			code = ExitError
		}
	}
	return code
}

// commandFunc is one dispatched command. It returns the process exit code
// it wants on success and any error that occurred; Run treats a non-nil
// error with a zero code as ExitError, but preserves pass-through codes
// (e.g. the review command's reviewer exit code) on success.
type commandFunc func(ctx context.Context, env *Env, args []string) (int, error)

var commands = map[string]commandFunc{
	"scan":           cmdScan,
	"discover":       cmdDiscover,
	"clone":          cmdClone,
	"validate":       cmdValidate,
	"focus":          cmdFocus,
	"compare":        cmdCompare,
	"track":          cmdTrack,
	"watch-add":      cmdWatchAdd,
	"watch-list":     cmdWatchList,
	"watch-remove":   cmdWatchRemove,
	"watch-run-once": cmdWatchRunOnce,
	"session":        cmdSession,
	"review":         cmdReview,
}

func newEnv(stdout, stderr io.Writer) (*Env, error) {
	globalPath, err := config.DefaultGlobalConfigPath()
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ConfigInvalid, "resolve global config path", err)
	}
	projectPath := filepath.Join(".scoutrc.json")

	cfg, err := config.Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}
	logger.Setup(cfg)

	layout, err := cachepath.NewLayout(cachepath.DefaultResolver{})
	if err != nil {
		return nil, scouterr.Wrap(scouterr.ConfigInvalid, "resolve cache layout", err)
	}
	if err := layout.EnsureAll(); err != nil {
		return nil, err
	}

	return &Env{
		Cfg:    cfg,
		Layout: layout,
		Git:    vcsutil.New(procexec.OSRunner{}),
		Stdout: stdout,
		Stderr: stderr,
		OutDir: ".scout",
	}, nil
}

func (e *Env) ensureOutDir() error {
	return os.MkdirAll(e.OutDir, 0o755)
}

func (e *Env) artifactPath(name string) string {
	return filepath.Join(e.OutDir, name)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `scout - repository-intelligence pipeline

Stable commands:
  scan                    Build a Fingerprint of the source tree
  discover                Run search lanes against the remote API
  clone                   Fetch Tier-1 candidates into the cache
  validate                Detect component kinds and audit modernity
  focus                   Bundle entrypoints and scope for each candidate
  compare                 Build the ranked comparison report

Experimental commands:
  track                   Add or update a tracked repo/kind pair
  watch-add                Alias for track
  watch-list               List tracked entries and their last snapshot
  watch-remove             Stop tracking a repo
  watch-run-once           Run one watch pass over all tracked entries
  session                  Inspect or rebuild a single session directory
  review                   Launch the reviewer subprocess on a session

Run 'scout <command> -h' for command-specific flags.
`)
}
