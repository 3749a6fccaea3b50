package forge

import (
	"context"
	"fmt"
	"net/http"

	"github.com/m0nk111/agent-forge-sub002/internal/ratelimit"
)

// InviteCollaborator invites a user to the repository with the given
// permission ("pull", "push", "admin").
func (c *Client) InviteCollaborator(ctx context.Context, repo Repo, user, permission string) error {
	path := fmt.Sprintf("/repos/%s/%s/collaborators/%s", repo.Owner, repo.Name, user)
	payload := map[string]string{"permission": permission}

	if err := c.mutate(ctx, ratelimit.OpAPIWrite, repo.String(), "", http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("forge: inviting %s to %s: %w", user, repo, err)
	}
	return nil
}

// ListInvitations returns the pending repository invitations for the
// authenticated user.
func (c *Client) ListInvitations(ctx context.Context) ([]Invitation, error) {
	var wire []struct {
		ID         int64 `json:"id"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
		Inviter wireUser `json:"inviter"`
	}
	if err := c.read(ctx, "invitations", "/user/repository_invitations", &wire); err != nil {
		return nil, fmt.Errorf("forge: listing invitations: %w", err)
	}

	invitations := make([]Invitation, 0, len(wire))
	for _, w := range wire {
		invitations = append(invitations, Invitation{
			ID:      w.ID,
			Repo:    w.Repository.FullName,
			Inviter: w.Inviter.Login,
		})
	}
	return invitations, nil
}

// AcceptInvitation accepts a pending repository invitation by ID.
func (c *Client) AcceptInvitation(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/user/repository_invitations/%d", id)

	if err := c.mutate(ctx, ratelimit.OpAPIWrite, fmt.Sprintf("invitation/%d", id), "", http.MethodPatch, path, nil, nil); err != nil {
		return fmt.Errorf("forge: accepting invitation %d: %w", id, err)
	}
	return nil
}

// CheckAccess reports whether user is a collaborator on repo.
func (c *Client) CheckAccess(ctx context.Context, repo Repo, user string) (bool, error) {
	path := fmt.Sprintf("/repos/%s/%s/collaborators/%s", repo.Owner, repo.Name, user)

	err := c.read(ctx, repo.String(), path, nil)
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if asAPIError(err, &apiErr) && apiErr.StatusCode == 404 {
		return false, nil
	}
	return false, fmt.Errorf("forge: checking access of %s to %s: %w", user, repo, err)
}
