package forge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/m0nk111/agent-forge-sub002/internal/ratelimit"
)

// GetPR fetches a single pull request snapshot.
func (c *Client) GetPR(ctx context.Context, repo Repo, number int) (*PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", repo.Owner, repo.Name, number)

	var wire wirePR
	if err := c.read(ctx, repo.IssueTarget(number), path, &wire); err != nil {
		return nil, fmt.Errorf("forge: getting PR %s: %w", repo.IssueTarget(number), err)
	}
	pr := wire.toPR(repo)
	return &pr, nil
}

// ListPRFiles returns the changed files of a pull request, paged.
func (c *Client) ListPRFiles(ctx context.Context, repo Repo, number int) ([]PRFile, error) {
	var files []PRFile

	for page := 1; page <= maxPages; page++ {
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			repo.Owner, repo.Name, number, perPage, page)

		var batch []PRFile
		if err := c.read(ctx, repo.IssueTarget(number), path, &batch); err != nil {
			return nil, fmt.Errorf("forge: listing files of PR %s: %w", repo.IssueTarget(number), err)
		}
		files = append(files, batch...)
		if len(batch) < perPage {
			break
		}
	}

	return files, nil
}

// AddComment posts a comment on a pull request. The body is fingerprinted so
// the limiter can suppress duplicates across restarts.
func (c *Client) AddComment(ctx context.Context, repo Repo, number int, body string) error {
	// PR conversation comments go through the issues comment endpoint.
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", repo.Owner, repo.Name, number)
	payload := map[string]string{"body": body}

	if err := c.mutate(ctx, ratelimit.OpPRComment, repo.IssueTarget(number), body, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("forge: commenting on PR %s: %w", repo.IssueTarget(number), err)
	}
	return nil
}

// RequestReviewers asks the listed users to review the PR. Requesting the PR
// author is rejected by the forge with a 422; that case is reported as an
// error for the caller to handle gracefully.
func (c *Client) RequestReviewers(ctx context.Context, repo Repo, number int, reviewers []string) error {
	if len(reviewers) == 0 {
		return nil
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/requested_reviewers", repo.Owner, repo.Name, number)
	payload := map[string][]string{"reviewers": reviewers}

	if err := c.mutate(ctx, ratelimit.OpAssignment, repo.IssueTarget(number), "", http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("forge: requesting reviewers for PR %s: %w", repo.IssueTarget(number), err)
	}
	return nil
}

// MergePR merges a pull request with the given method. Merge is the last
// irreversible step of the workflow; it is never retried.
func (c *Client) MergePR(ctx context.Context, repo Repo, number int, opts MergeOpts) error {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", repo.Owner, repo.Name, number)

	method := opts.Method
	if method == "" {
		method = MergeMethodMerge
	}
	payload := map[string]string{"merge_method": string(method)}
	if opts.CommitTitle != "" {
		payload["commit_title"] = opts.CommitTitle
	}
	if opts.CommitMessage != "" {
		payload["commit_message"] = opts.CommitMessage
	}

	if err := c.mutate(ctx, ratelimit.OpPRUpdate, repo.IssueTarget(number), "", http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("forge: merging PR %s: %w", repo.IssueTarget(number), err)
	}
	return nil
}

// ClosePR closes a pull request without merging.
func (c *Client) ClosePR(ctx context.Context, repo Repo, number int) error {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", repo.Owner, repo.Name, number)
	payload := map[string]string{"state": "closed"}

	if err := c.mutate(ctx, ratelimit.OpPRUpdate, repo.IssueTarget(number), "", http.MethodPatch, path, payload, nil); err != nil {
		return fmt.Errorf("forge: closing PR %s: %w", repo.IssueTarget(number), err)
	}
	return nil
}

// ConvertPRToDraft marks an open PR as a draft. Draft transitions are only
// exposed through the forge's GraphQL protocol, so this resolves the PR's
// node ID first.
func (c *Client) ConvertPRToDraft(ctx context.Context, repo Repo, number int) error {
	return c.setDraftState(ctx, repo, number, true)
}

// MarkPRReady removes the draft state from a PR.
func (c *Client) MarkPRReady(ctx context.Context, repo Repo, number int) error {
	return c.setDraftState(ctx, repo, number, false)
}

// setDraftState flips the draft flag via the GraphQL endpoint.
func (c *Client) setDraftState(ctx context.Context, repo Repo, number int, draft bool) error {
	pr, err := c.GetPR(ctx, repo, number)
	if err != nil {
		return fmt.Errorf("forge: resolving node for PR %s: %w", repo.IssueTarget(number), err)
	}
	if pr.Draft == draft {
		return nil
	}

	mutation := "markPullRequestReadyForReview"
	if draft {
		mutation = "convertPullRequestToDraft"
	}
	query := fmt.Sprintf(
		`mutation { %s(input: {pullRequestId: %q}) { pullRequest { isDraft } } }`,
		mutation, pr.NodeID,
	)
	payload := map[string]string{"query": query}

	if err := c.mutate(ctx, ratelimit.OpPRUpdate, repo.IssueTarget(number), "", http.MethodPost, "/graphql", payload, nil); err != nil {
		return fmt.Errorf("forge: setting draft=%t on PR %s: %w", draft, repo.IssueTarget(number), err)
	}
	return nil
}
