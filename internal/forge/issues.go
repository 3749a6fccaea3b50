package forge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/m0nk111/agent-forge-sub002/internal/ratelimit"
)

// ListIssues returns issues matching the filter. Pull requests surfaced by
// the issues endpoint are filtered out; GetPR is the path for those.
func (c *Client) ListIssues(ctx context.Context, repo Repo, filter IssueFilter) ([]Issue, error) {
	var issues []Issue

	for page := 1; page <= maxPages; page++ {
		path := fmt.Sprintf("/repos/%s/%s/issues?%s", repo.Owner, repo.Name, listQuery(filter, page))

		var wire []wireIssue
		if err := c.read(ctx, repo.String(), path, &wire); err != nil {
			return nil, fmt.Errorf("forge: listing issues for %s: %w", repo, err)
		}
		for i := range wire {
			if wire[i].PullRequest != nil {
				continue // the issues endpoint interleaves PRs
			}
			issues = append(issues, wire[i].toIssue(repo))
		}
		if len(wire) < perPage {
			break
		}
	}

	return issues, nil
}

// GetIssue fetches a single issue snapshot.
func (c *Client) GetIssue(ctx context.Context, repo Repo, number int) (*Issue, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", repo.Owner, repo.Name, number)

	var wire wireIssue
	if err := c.read(ctx, repo.IssueTarget(number), path, &wire); err != nil {
		return nil, fmt.Errorf("forge: getting issue %s: %w", repo.IssueTarget(number), err)
	}
	issue := wire.toIssue(repo)
	return &issue, nil
}

// CommentIssue posts a comment on an issue. The body is fingerprinted at
// this layer so the limiter can suppress duplicate comments across restarts.
func (c *Client) CommentIssue(ctx context.Context, repo Repo, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", repo.Owner, repo.Name, number)
	payload := map[string]string{"body": body}

	if err := c.mutate(ctx, ratelimit.OpIssueComment, repo.IssueTarget(number), body, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("forge: commenting on issue %s: %w", repo.IssueTarget(number), err)
	}
	return nil
}

// CreateIssue opens a new issue and returns its snapshot.
func (c *Client) CreateIssue(ctx context.Context, repo Repo, issue NewIssue) (*Issue, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues", repo.Owner, repo.Name)

	var wire wireIssue
	if err := c.mutate(ctx, ratelimit.OpIssueCreate, repo.String(), issue.Title+"\n"+issue.Body, http.MethodPost, path, issue, &wire); err != nil {
		return nil, fmt.Errorf("forge: creating issue in %s: %w", repo, err)
	}
	created := wire.toIssue(repo)
	return &created, nil
}

// AddLabels appends labels to an issue or PR.
func (c *Client) AddLabels(ctx context.Context, repo Repo, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels", repo.Owner, repo.Name, number)
	payload := map[string][]string{"labels": labels}

	if err := c.mutate(ctx, ratelimit.OpLabelUpdate, repo.IssueTarget(number), "", http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("forge: adding labels to %s: %w", repo.IssueTarget(number), err)
	}
	return nil
}

// RemoveLabel removes a single label from an issue or PR. A 404 from the
// forge (label absent) is not an error.
func (c *Client) RemoveLabel(ctx context.Context, repo Repo, number int, label string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/labels/%s", repo.Owner, repo.Name, number, label)

	err := c.mutate(ctx, ratelimit.OpLabelUpdate, repo.IssueTarget(number), "", http.MethodDelete, path, nil, nil)
	if err != nil {
		var apiErr *APIError
		if asAPIError(err, &apiErr) && apiErr.StatusCode == 404 {
			return nil
		}
		return fmt.Errorf("forge: removing label %q from %s: %w", label, repo.IssueTarget(number), err)
	}
	return nil
}

// SetAssignees replaces the assignees of an issue or PR.
func (c *Client) SetAssignees(ctx context.Context, repo Repo, number int, assignees []string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/assignees", repo.Owner, repo.Name, number)
	payload := map[string][]string{"assignees": assignees}

	if err := c.mutate(ctx, ratelimit.OpAssignment, repo.IssueTarget(number), "", http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("forge: assigning %s: %w", repo.IssueTarget(number), err)
	}
	return nil
}
