package commit

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/loredb-bench/tracker/types"
)

// GitClient runs git in a repository checkout
type GitClient interface {
	Run(ctx context.Context, repoPath string, args ...string) ([]byte, error)
}

// LocalGitClient executes the git binary found on PATH
type LocalGitClient struct{}

var _ GitClient = &LocalGitClient{}

// Run executes a git command and returns its stdout
func (c *LocalGitClient) Run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, fmt.Errorf("git '%v' exit: %s", strings.Join(fullArgs, " "), strings.TrimSpace(string(exitErr.Stderr)))
	} else if err != nil {
		return nil, fmt.Errorf("git '%v' unknown: %w", strings.Join(fullArgs, " "), err)
	}
	return out, nil
}

// one field per line, subject last
const gitLogFormat = "--format=%H%n%an%n%ae%n%cn%n%ce%n%cI%n%T%n%s"

// FromGit describes HEAD of the checkout at repoPath
func FromGit(ctx context.Context, git GitClient, repoPath, repoURL string) (*types.Commit, error) {
	return FromGitRef(ctx, git, repoPath, repoURL, "HEAD")
}

// FromGitRef describes the given revision of the checkout at repoPath
func FromGitRef(ctx context.Context, git GitClient, repoPath, repoURL, ref string) (*types.Commit, error) {
	out, err := git.Run(ctx, repoPath, "log", "-1", gitLogFormat, ref)
	if err != nil {
		return nil, err
	}

	lines := strings.SplitN(strings.TrimRight(string(out), "\n"), "\n", 8)
	if len(lines) < 8 {
		return nil, fmt.Errorf("unexpected git log output: %q", string(out))
	}

	c := &types.Commit{
		ID:        lines[0],
		Author:    types.Person{Name: lines[1], Email: lines[2]},
		Committer: types.Person{Name: lines[3], Email: lines[4]},
		Timestamp: lines[5],
		TreeID:    lines[6],
		Message:   lines[7],
	}
	if repoURL != "" {
		c.URL = strings.TrimSuffix(repoURL, "/") + "/commit/" + c.ID
	}
	return c, nil
}

// RemoteURL returns the https form of the origin remote, or "" when unknown
func RemoteURL(ctx context.Context, git GitClient, repoPath string) string {
	out, err := git.Run(ctx, repoPath, "config", "--get", "remote.origin.url")
	if err != nil {
		return ""
	}
	return NormalizeRepoURL(strings.TrimSpace(string(out)))
}

// NormalizeRepoURL turns ssh and .git remotes into browsable https URLs
func NormalizeRepoURL(remote string) string {
	remote = strings.TrimSuffix(remote, ".git")
	if rest, ok := strings.CutPrefix(remote, "git@"); ok {
		host, path, found := strings.Cut(rest, ":")
		if found {
			return "https://" + host + "/" + path
		}
	}
	return remote
}
