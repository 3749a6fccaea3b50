package forge

import (
	"fmt"
	"time"
)

// Repo identifies a repository by owner and name.
type Repo struct {
	Owner string
	Name  string
}

// String returns the canonical "owner/name" form.
func (r Repo) String() string { return r.Owner + "/" + r.Name }

// IssueTarget returns the rate-limit target key for an issue or PR number.
func (r Repo) IssueTarget(number int) string {
	return fmt.Sprintf("%s#%d", r.String(), number)
}

// Issue is an immutable snapshot of a forge issue within one pipeline run.
type Issue struct {
	Repo      Repo      `json:"-"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	Labels    []string  `json:"labels"`
	Assignees []string  `json:"assignees"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLabel reports whether the issue carries the given label.
func (i *Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// PullRequest is a snapshot of a forge pull request.
type PullRequest struct {
	Repo           Repo      `json:"-"`
	NodeID         string    `json:"node_id"`
	Number         int       `json:"number"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	State          string    `json:"state"`
	Author         string    `json:"author"`
	Draft          bool      `json:"draft"`
	Merged         bool      `json:"merged"`
	Mergeable      *bool     `json:"mergeable"`
	BaseBranch     string    `json:"base_branch"`
	HeadBranch     string    `json:"head_branch"`
	CommitsBehind  int       `json:"commits_behind"`
	ChangedFiles   int       `json:"changed_files"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasConflicts reports whether the forge has marked the PR unmergeable.
// A nil Mergeable means the forge has not computed mergeability yet.
func (pr *PullRequest) HasConflicts() bool {
	return pr.Mergeable != nil && !*pr.Mergeable
}

// PRFile is one changed file in a pull request.
type PRFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"` // added, modified, removed, renamed
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// MergeMethod selects how a PR is merged.
type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// MergeOpts configures a merge operation.
type MergeOpts struct {
	Method        MergeMethod
	CommitTitle   string
	CommitMessage string
}

// IssueFilter narrows ListIssues results.
type IssueFilter struct {
	// Assignee filters by assigned username. Empty means any.
	Assignee string

	// State is "open", "closed", or "all". Empty means "open".
	State string

	// Labels requires all listed labels to be present.
	Labels []string
}

// NewIssue is the payload for CreateIssue.
type NewIssue struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

// Invitation is a pending collaborator invitation.
type Invitation struct {
	ID      int64  `json:"id"`
	Repo    string `json:"repo"`
	Inviter string `json:"inviter"`
}

// --- wire types (forge JSON encoding) ---

type wireUser struct {
	Login string `json:"login"`
}

type wireLabel struct {
	Name string `json:"name"`
}

type wireIssue struct {
	Number      int         `json:"number"`
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	State       string      `json:"state"`
	User        wireUser    `json:"user"`
	Labels      []wireLabel `json:"labels"`
	Assignees   []wireUser  `json:"assignees"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	PullRequest *struct{}   `json:"pull_request,omitempty"`
}

// toIssue converts the wire form to the snapshot record.
func (w *wireIssue) toIssue(repo Repo) Issue {
	labels := make([]string, 0, len(w.Labels))
	for _, l := range w.Labels {
		labels = append(labels, l.Name)
	}
	assignees := make([]string, 0, len(w.Assignees))
	for _, a := range w.Assignees {
		assignees = append(assignees, a.Login)
	}
	return Issue{
		Repo:      repo,
		Number:    w.Number,
		Title:     w.Title,
		Body:      w.Body,
		State:     w.State,
		Labels:    labels,
		Assignees: assignees,
		Author:    w.User.Login,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

type wireBranch struct {
	Ref string `json:"ref"`
}

type wirePR struct {
	NodeID       string     `json:"node_id"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	State        string     `json:"state"`
	User         wireUser   `json:"user"`
	Draft        bool       `json:"draft"`
	Merged       bool       `json:"merged"`
	Mergeable    *bool      `json:"mergeable"`
	Base         wireBranch `json:"base"`
	Head         wireBranch `json:"head"`
	ChangedFiles int        `json:"changed_files"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (w *wirePR) toPR(repo Repo) PullRequest {
	return PullRequest{
		Repo:         repo,
		NodeID:       w.NodeID,
		Number:       w.Number,
		Title:        w.Title,
		Body:         w.Body,
		State:        w.State,
		Author:       w.User.Login,
		Draft:        w.Draft,
		Merged:       w.Merged,
		Mergeable:    w.Mergeable,
		BaseBranch:   w.Base.Ref,
		HeadBranch:   w.Head.Ref,
		ChangedFiles: w.ChangedFiles,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}
