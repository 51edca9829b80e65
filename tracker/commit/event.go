// Package commit discovers the commit descriptor of a benchmark run.
package commit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/loredb-bench/tracker/types"
)

// ErrNoCommit is returned when no source yields a commit
var ErrNoCommit = errors.New("no commit information found")

type githubUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Login    string `json:"login"`
}

type githubEvent struct {
	HeadCommit *struct {
		Author    githubUser `json:"author"`
		Committer githubUser `json:"committer"`
		Distinct  *bool      `json:"distinct"`
		ID        string     `json:"id"`
		Message   string     `json:"message"`
		Timestamp string     `json:"timestamp"`
		TreeID    string     `json:"tree_id"`
		URL       string     `json:"url"`
	} `json:"head_commit"`
	PullRequest *struct {
		Title   string     `json:"title"`
		HTMLURL string     `json:"html_url"`
		User    githubUser `json:"user"`
		Head    struct {
			SHA  string `json:"sha"`
			Repo struct {
				UpdatedAt string `json:"updated_at"`
			} `json:"repo"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		HTMLURL string `json:"html_url"`
	} `json:"repository"`
}

func (u githubUser) person() types.Person {
	p := types.Person{Name: u.Name, Email: u.Email, Username: u.Username}
	if p.Name == "" {
		p.Name = u.Login
	}
	if p.Username == "" {
		p.Username = u.Login
	}
	return p
}

// FromGitHubEvent reads the workflow event payload at path. Push events use
// head_commit; pull request events describe the head of the PR.
func FromGitHubEvent(path string) (*types.Commit, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read event payload: %w", err)
	}
	return ParseGitHubEvent(data)
}

// ParseGitHubEvent returns the commit and the repository URL of an event payload
func ParseGitHubEvent(data []byte) (*types.Commit, string, error) {
	var ev githubEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, "", fmt.Errorf("failed to parse event payload: %w", err)
	}
	repoURL := ev.Repository.HTMLURL

	if hc := ev.HeadCommit; hc != nil && hc.ID != "" {
		return &types.Commit{
			Author:    hc.Author.person(),
			Committer: hc.Committer.person(),
			Distinct:  hc.Distinct,
			ID:        hc.ID,
			Message:   hc.Message,
			Timestamp: hc.Timestamp,
			TreeID:    hc.TreeID,
			URL:       hc.URL,
		}, repoURL, nil
	}

	if pr := ev.PullRequest; pr != nil && pr.Head.SHA != "" {
		user := pr.User.person()
		return &types.Commit{
			Author:    user,
			Committer: user,
			ID:        pr.Head.SHA,
			Message:   pr.Title,
			Timestamp: pr.Head.Repo.UpdatedAt,
			URL:       pr.HTMLURL + "/commits/" + pr.Head.SHA,
		}, repoURL, nil
	}

	return nil, repoURL, ErrNoCommit
}

// Resolver finds the commit of the current run
type Resolver struct {
	EventPath string
	RepoPath  string
	RepoURL   string
	Git       GitClient
	Log       logrus.FieldLogger
}

// Resolve tries the GitHub event payload first and falls back to git. The
// returned repository URL prefers the configured one.
func (r *Resolver) Resolve(ctx context.Context) (*types.Commit, string, error) {
	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "commit")

	repoURL := r.RepoURL
	if r.EventPath != "" {
		c, eventRepo, err := FromGitHubEvent(r.EventPath)
		if err == nil {
			if repoURL == "" {
				repoURL = eventRepo
			}
			log.WithField("commit", c.ShortID()).Debug("Commit resolved from event payload")
			return c, repoURL, nil
		}
		log.WithError(err).Warn("Could not use event payload, falling back to git")
	}

	if r.Git == nil {
		return nil, repoURL, ErrNoCommit
	}
	repoPath := r.RepoPath
	if repoPath == "" {
		repoPath = "."
	}
	if repoURL == "" {
		repoURL = RemoteURL(ctx, r.Git, repoPath)
	}

	c, err := FromGit(ctx, r.Git, repoPath, repoURL)
	if err != nil {
		return nil, repoURL, fmt.Errorf("%w: %v", ErrNoCommit, err)
	}
	log.WithField("commit", c.ShortID()).Debug("Commit resolved from git")
	return c, repoURL, nil
}
