// Package hostapi defines the narrow interface the Discovery Engine
// consumes against the remote code-hosting search/metadata API. The HTTPS
// client itself is an external collaborator (spec.md §1); this package only
// names the typed item shape and the cache-keying scheme used to memoize
// lane/page responses (spec.md §4.4).
package hostapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Item is the typed shape returned by the remote search/metadata API for a
// single repository (spec.md §6).
type Item struct {
	Identifier  string // "owner/name"
	URL         string
	Stars       int
	Forks       int
	PushedAt    time.Time
	License     string // SPDX id, empty if unknown
	Description string
	Topics      []string
	Archived    bool
	Fork        bool
}

// Page is one page of search results for a lane query.
type Page struct {
	Items      []Item
	NextPage   int // 0 means no further pages
}

// Client is the narrow search/metadata interface the Discovery Engine
// consumes. Implementations own authentication, pagination mechanics below
// the Page abstraction, and honor ctx cancellation.
type Client interface {
	Search(ctx context.Context, query string, page int) (Page, error)
}

// CacheKey returns the SHA-256 hex digest used to key the on-disk response
// cache for a given lane query and page (spec.md §4.4 "Caching").
func CacheKey(query string, page int) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(itoa(page)))
	return hex.EncodeToString(h.Sum(nil))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}
