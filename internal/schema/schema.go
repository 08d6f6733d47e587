// Package schema implements spec.md §4.17: every persisted pipeline
// artifact is validated at write and at read. It supplies the shared
// range/format checks every stage's own artifact type uses from its
// Validate method, plus the JSON load/save helpers that enforce them at
// the filesystem boundary.
//
// Invalid JSON on read yields defaults only for configuration; for
// pipeline artifacts a read or validation failure surfaces as
// scouterr.ArtifactInvalid, never a silent empty value.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scoutforge/scout/internal/scouterr"
)

// Validator is implemented by every stage's own artifact type.
type Validator interface {
	Validate() error
}

// Unit01 reports whether v lies in the closed interval [0,1].
func Unit01(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be in [0,1], got %v", name, v)
	}
	return nil
}

// NonNegativeInt reports whether v is zero or positive.
func NonNegativeInt(name string, v int) error {
	if v < 0 {
		return fmt.Errorf("%s must be nonnegative, got %d", name, v)
	}
	return nil
}

// NonEmpty reports whether s has at least one character.
func NonEmpty(name, s string) error {
	if s == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	return nil
}

// OneOf reports whether v is a member of allowed, the enum-tag check
// spec.md §4.17 requires for kind fields.
func OneOf(name, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s %q is not one of %v", name, v, allowed)
}

// RFC3339 rejects the zero time. It is the only timestamp check needed,
// since time.Time itself cannot hold an unparsable timestamp and always
// serializes as RFC3339.
func RFC3339(name string, t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%s must not be zero", name)
	}
	return nil
}

// URL reports whether s looks like an absolute URL with a scheme, the
// minimal check spec.md §4.17 asks for.
func URL(name, s string) error {
	if s == "" {
		return fmt.Errorf("%s must not be empty", name)
	}
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return nil
		}
		if s[i] == '/' {
			break
		}
	}
	return fmt.Errorf("%s %q is missing a scheme", name, s)
}

// Save validates v and writes it as indented JSON to path, creating parent
// directories as needed. Writing is a plain os.WriteFile, not an atomic
// rename, but Validate always runs before any byte reaches disk.
func Save(path string, v Validator) error {
	if err := v.Validate(); err != nil {
		return scouterr.Wrap(scouterr.ArtifactInvalid, "refusing to persist invalid artifact "+path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return scouterr.Wrap(scouterr.ArtifactInvalid, "marshal artifact "+path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads path into v and validates it. A missing or malformed file, or
// one that fails Validate, is reported as scouterr.ArtifactInvalid — the
// pipeline-artifact failure mode distinguished from config's defaults-on-
// invalid behavior (spec.md §4.17).
func Load(path string, v Validator) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return scouterr.Wrap(scouterr.ArtifactInvalid, "read artifact "+path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return scouterr.Wrap(scouterr.ArtifactInvalid, "parse artifact "+path, err)
	}
	if err := v.Validate(); err != nil {
		return scouterr.Wrap(scouterr.ArtifactInvalid, "validate artifact "+path, err)
	}
	return nil
}
