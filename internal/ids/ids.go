// Package ids provides helpers for repository identifiers and safe path
// fragments derived from them.
package ids

import (
	"fmt"
	"strings"
)

// RepoID is an "owner/name" repository identifier, the uniqueness key used
// throughout the discovery, clone, and watch subsystems.
type RepoID string

// Parse splits a RepoID into its owner and name parts. It returns an error
// if the identifier is not in "owner/name" form.
func Parse(id string) (owner, name string, err error) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("ids: invalid repository identifier %q", id)
	}
	return parts[0], parts[1], nil
}

// New builds a RepoID from owner and name.
func New(owner, name string) string {
	return owner + "/" + name
}

// SafeName returns a filesystem-safe rendering of a repo id, used for session
// directory names ("owner__name" instead of "owner/name").
func SafeName(id string) string {
	owner, name, err := Parse(id)
	if err != nil {
		return strings.ReplaceAll(id, "/", "__")
	}
	return owner + "__" + name
}

// ShortCommit truncates a commit id to 7 characters, the conventional short
// form used in session directory names.
func ShortCommit(commit string) string {
	if len(commit) <= 7 {
		return commit
	}
	return commit[:7]
}
