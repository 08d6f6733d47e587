package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/scoutforge/scout/internal/hostapi"
	"github.com/scoutforge/scout/internal/procexec"
	"github.com/scoutforge/scout/internal/scouterr"
)

// ghHostClient implements hostapi.Client by shelling out to the host CLI's
// search subcommand. internal/hostapi ships no concrete client of its own
// -- the real HTTPS client is an external collaborator (spec.md §1) -- so
// this adapter lives at the CLI boundary and reuses whatever host CLI the
// operator already has authenticated, the same assumption
// config.RemoteConfig.HostCLIName and its token fallback already make.
type ghHostClient struct {
	runner procexec.Runner
	name   string
	token  string
}

func newHostClient(env *Env) (hostapi.Client, error) {
	name := env.Cfg.Remote.HostCLIName
	if name == "" {
		name = "gh"
	}
	return &ghHostClient{runner: procexec.OSRunner{}, name: name, token: env.Cfg.Remote.Token}, nil
}

type ghSearchRow struct {
	FullName        string    `json:"fullName"`
	URL             string    `json:"url"`
	StargazersCount int       `json:"stargazersCount"`
	ForksCount      int       `json:"forksCount"`
	PushedAt        string    `json:"pushedAt"`
	License         ghLicense `json:"license"`
	Description     string    `json:"description"`
	Topics          []string  `json:"topics"`
	IsArchived      bool      `json:"isArchived"`
	IsFork          bool      `json:"isFork"`
}

type ghLicense struct {
	Key    string `json:"key"`
	SPDXID string `json:"spdxId"`
}

// Search shells out to "<host-cli> search repos <query> --json ...". The
// host CLI's search subcommand has no page/offset parameter, so only the
// first page ever carries results; a page beyond the first comes back
// empty with no NextPage, which the Discovery Engine's pagination loop
// already treats as exhaustion.
func (c *ghHostClient) Search(ctx context.Context, query string, page int) (hostapi.Page, error) {
	if page > 1 {
		return hostapi.Page{}, nil
	}

	env := os.Environ()
	if c.token != "" {
		env = append(env, "GH_TOKEN="+c.token)
	}

	argv := []string{
		c.name, "search", "repos", query,
		"--limit", "50",
		"--json", "fullName,url,stargazersCount,forksCount,pushedAt,license,description,topics,isArchived,isFork",
	}
	result, err := c.runner.Run(ctx, "", env, argv...)
	if err != nil {
		return hostapi.Page{}, scouterr.Wrap(scouterr.RemoteError, "run host search CLI", err)
	}
	if result.ExitCode != 0 {
		return hostapi.Page{}, scouterr.New(scouterr.RemoteError, fmt.Sprintf("host search CLI exited %d: %s", result.ExitCode, result.Stderr))
	}

	var rows []ghSearchRow
	if err := json.Unmarshal([]byte(result.Stdout), &rows); err != nil {
		return hostapi.Page{}, scouterr.Wrap(scouterr.RemoteError, "parse host search CLI output", err)
	}

	items := make([]hostapi.Item, 0, len(rows))
	for _, r := range rows {
		pushedAt, _ := time.Parse(time.RFC3339, r.PushedAt)
		license := r.License.SPDXID
		if license == "" {
			license = r.License.Key
		}
		items = append(items, hostapi.Item{
			Identifier:  r.FullName,
			URL:         r.URL,
			Stars:       r.StargazersCount,
			Forks:       r.ForksCount,
			PushedAt:    pushedAt,
			License:     license,
			Description: r.Description,
			Topics:      r.Topics,
			Archived:    r.IsArchived,
			Fork:        r.IsFork,
		})
	}

	return hostapi.Page{Items: items}, nil
}
