// Package remote locates the project's GitHub repository, which hosts the
// preset catalog and the release manifest.
//
// The repository is resolved once: build-time ldflags first, then the
// STATUSCORD_REPO environment variable, then the local git origin.
package remote

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Set at build time via:
//
//	-X tools.zach/dev/statuscord/internal/remote.ldRepo=owner/name
//	-X tools.zach/dev/statuscord/internal/remote.ldBranch=main
var (
	ldRepo   string
	ldBranch string
)

// EnvRepo overrides the repository as "owner/name".
const EnvRepo = "STATUSCORD_REPO"

const defaultBranch = "main"

// Repo is a GitHub repository and the branch raw files are read from.
type Repo struct {
	Owner  string
	Name   string
	Branch string
}

// originRe matches HTTPS and SSH GitHub remotes. Repository names may
// contain dots; a trailing .git is dropped.
var originRe = regexp.MustCompile(`github\.com[:/]([^/\s]+)/([^/\s]+?)(?:\.git)?/?\s*$`)

// ParseOrigin extracts the repository from a git remote URL.
func ParseOrigin(url string) (Repo, bool) {
	m := originRe.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return Repo{}, false
	}
	return Repo{Owner: m[1], Name: m[2], Branch: defaultBranch}, true
}

// ParseSlug parses "owner/name".
func ParseSlug(s string) (Repo, bool) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, false
	}
	return Repo{Owner: owner, Name: name, Branch: defaultBranch}, true
}

// RawURL returns the raw content URL of path in r, or "" when r is unset.
func (r Repo) RawURL(path string) string {
	if r.Owner == "" || r.Name == "" {
		return ""
	}
	branch := r.Branch
	if branch == "" {
		branch = defaultBranch
	}
	return "https://raw.githubusercontent.com/" + r.Owner + "/" + r.Name + "/" + branch + "/" + strings.TrimPrefix(path, "/")
}

var (
	resolveOnce sync.Once
	resolved    Repo
)

// Default returns the project repository. It is the zero Repo when none of
// the sources yields one.
func Default() Repo {
	resolveOnce.Do(func() {
		resolved = resolve(os.Getenv(EnvRepo), gitOrigin)
		if ldBranch != "" && resolved.Owner != "" {
			resolved.Branch = ldBranch
		}
	})
	return resolved
}

func resolve(env string, origin func() (string, error)) Repo {
	if r, ok := ParseSlug(ldRepo); ok {
		return r
	}
	if r, ok := ParseSlug(env); ok {
		return r
	}
	out, err := origin()
	if err != nil {
		slog.Debug("remote: no repository configured and git origin unavailable", "error", err)
		return Repo{}
	}
	r, _ := ParseOrigin(out)
	return r
}

func gitOrigin() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git", "remote", "get-url", "origin").Output()
	return string(out), err
}

// RawURL returns the raw content URL of path in the project repository, or
// "" when it is unknown.
func RawURL(path string) string {
	return Default().RawURL(path)
}
