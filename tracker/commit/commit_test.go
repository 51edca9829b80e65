package commit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGit struct {
	outputs map[string]string
	calls   [][]string
}

func (f *fakeGit) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	out, ok := f.outputs[args[0]]
	if !ok {
		return nil, errors.New("exit status 128")
	}
	return []byte(out), nil
}

const pushEvent = `{
  "head_commit": {
    "author": {"email": "dev@example.com", "name": "buddy-computer", "username": "buddy-computer"},
    "committer": {"email": "noreply@github.com", "name": "GitHub", "username": "web-flow"},
    "distinct": true,
    "id": "8c3f263de688f5e3ed84c03dffed02211e43717a",
    "message": "Enhance README and add Continuous Benchmarking workflow",
    "timestamp": "2025-07-10T16:55:21Z",
    "tree_id": "1f0c1c6a8b8e2d",
    "url": "https://github.com/buddy-computer/loredb/commit/8c3f263de688f5e3ed84c03dffed02211e43717a"
  },
  "repository": {"html_url": "https://github.com/buddy-computer/loredb"}
}`

const pullRequestEvent = `{
  "pull_request": {
    "title": "Enhance README and add Continuous Benchmarking workflow",
    "html_url": "https://github.com/buddy-computer/loredb/pull/4",
    "user": {"login": "buddy-computer"},
    "head": {"sha": "8c3f263de688f5e3ed84c03dffed02211e43717a", "repo": {"updated_at": "2025-07-10T16:55:21Z"}}
  },
  "repository": {"html_url": "https://github.com/buddy-computer/loredb"}
}`

func TestParsePushEvent(t *testing.T) {
	c, repo, err := ParseGitHubEvent([]byte(pushEvent))
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/buddy-computer/loredb", repo)
	assert.Equal(t, "8c3f263de688f5e3ed84c03dffed02211e43717a", c.ID)
	assert.Equal(t, "buddy-computer", c.Author.Username)
	assert.Equal(t, "web-flow", c.Committer.Username)
	require.NotNil(t, c.Distinct)
	assert.True(t, *c.Distinct)
	assert.Equal(t, "1f0c1c6a8b8e2d", c.TreeID)
}

func TestParsePullRequestEvent(t *testing.T) {
	c, _, err := ParseGitHubEvent([]byte(pullRequestEvent))
	require.NoError(t, err)

	assert.Equal(t, "8c3f263de688f5e3ed84c03dffed02211e43717a", c.ID)
	assert.Equal(t, "buddy-computer", c.Author.Name)
	assert.Equal(t, "buddy-computer", c.Author.Username)
	assert.Equal(t, "https://github.com/buddy-computer/loredb/pull/4/commits/8c3f263de688f5e3ed84c03dffed02211e43717a", c.URL)
	assert.Nil(t, c.Distinct)
}

func TestParseEventWithoutCommit(t *testing.T) {
	_, repo, err := ParseGitHubEvent([]byte(`{"repository": {"html_url": "https://github.com/a/b"}}`))
	assert.ErrorIs(t, err, ErrNoCommit)
	assert.Equal(t, "https://github.com/a/b", repo)

	_, _, err = ParseGitHubEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestFromGit(t *testing.T) {
	git := &fakeGit{outputs: map[string]string{
		"log": strings.Join([]string{
			"8c3f263de688f5e3ed84c03dffed02211e43717a",
			"Dev", "dev@example.com",
			"GitHub", "noreply@github.com",
			"2025-07-10T16:55:21+00:00",
			"1f0c1c6a8b8e2d",
			"Add benchmark workflow",
		}, "\n") + "\n",
	}}

	c, err := FromGit(context.Background(), git, ".", "https://github.com/buddy-computer/loredb/")
	require.NoError(t, err)
	assert.Equal(t, "Dev", c.Author.Name)
	assert.Equal(t, "noreply@github.com", c.Committer.Email)
	assert.Equal(t, "Add benchmark workflow", c.Message)
	assert.Equal(t, "https://github.com/buddy-computer/loredb/commit/8c3f263de688f5e3ed84c03dffed02211e43717a", c.URL)
	assert.Equal(t, "HEAD", git.calls[0][len(git.calls[0])-1])

	_, err = FromGit(context.Background(), &fakeGit{outputs: map[string]string{"log": "abc\n"}}, ".", "")
	assert.Error(t, err)
}

func TestNormalizeRepoURL(t *testing.T) {
	assert.Equal(t, "https://github.com/buddy-computer/loredb", NormalizeRepoURL("git@github.com:buddy-computer/loredb.git"))
	assert.Equal(t, "https://github.com/buddy-computer/loredb", NormalizeRepoURL("https://github.com/buddy-computer/loredb.git"))
}

func TestResolverPrefersEventFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(pushEvent), 0644))

	git := &fakeGit{}
	r := &Resolver{EventPath: path, Git: git}
	c, repo, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8c3f263de688f5e3ed84c03dffed02211e43717a", c.ID)
	assert.Equal(t, "https://github.com/buddy-computer/loredb", repo)
	assert.Empty(t, git.calls)
}

func TestResolverFallsBackToGit(t *testing.T) {
	logger, hook := test.NewNullLogger()
	git := &fakeGit{outputs: map[string]string{
		"config": "git@github.com:buddy-computer/loredb.git\n",
		"log":    "abc1234\na\na@x\nc\nc@x\n2025-07-10T16:55:21Z\ntree\nmsg\n",
	}}

	r := &Resolver{EventPath: filepath.Join(t.TempDir(), "missing.json"), Git: git, Log: logger}
	c, repo, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc1234", c.ID)
	assert.Equal(t, "https://github.com/buddy-computer/loredb", repo)
	assert.Equal(t, "https://github.com/buddy-computer/loredb/commit/abc1234", c.URL)

	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.AllEntries()[0].Level)
}

func TestResolverNoSource(t *testing.T) {
	r := &Resolver{}
	_, _, err := r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoCommit)

	r = &Resolver{Git: &fakeGit{}}
	_, _, err = r.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrNoCommit)
}
