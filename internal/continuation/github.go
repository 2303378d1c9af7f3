// internal/continuation/github.go
package continuation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	apperrors "github.com/valpere/AdScrapexter/internal/errors"
)

// DefaultEventType is the repository_dispatch event the successor workflow listens for
const DefaultEventType = "unified_agent_trigger"

// GitHubEmitter triggers a repository_dispatch event
type GitHubEmitter struct {
	client    *github.Client
	owner     string
	repo      string
	eventType string
}

// NewGitHubEmitter creates an emitter for repository "owner/name"
// authenticated with token
func NewGitHubEmitter(repository, token, eventType string) (*GitHubEmitter, error) {
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, apperrors.Newf(apperrors.KindConfig, "repository must be owner/name, got %q", repository)
	}
	if token == "" {
		return nil, apperrors.New(apperrors.KindConfig, "github continuation requires a token")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return NewGitHubEmitterWithClient(github.NewClient(tc), owner, repo, eventType), nil
}

// NewGitHubEmitterWithClient uses an existing client
func NewGitHubEmitterWithClient(client *github.Client, owner, repo, eventType string) *GitHubEmitter {
	if eventType == "" {
		eventType = DefaultEventType
	}
	return &GitHubEmitter{client: client, owner: owner, repo: repo, eventType: eventType}
}

func (g *GitHubEmitter) Emit(ctx context.Context, sig Signal) error {
	payload, err := sig.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}
	raw := json.RawMessage(payload)

	_, resp, err := g.client.Repositories.Dispatch(ctx, g.owner, g.repo, github.DispatchRequestOptions{
		EventType:     g.eventType,
		ClientPayload: &raw,
	})
	if err != nil {
		return fmt.Errorf("repository dispatch to %s/%s failed: %w", g.owner, g.repo, err)
	}
	if resp != nil && resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("repository dispatch returned %s", resp.Status)
	}
	return nil
}
