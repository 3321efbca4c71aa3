package webhook

// Trigger identifies the workflow-relevant classification of a delivery.
type Trigger string

const (
	TriggerPing            Trigger = "ping"
	TriggerIssueOpened     Trigger = "issue-opened"
	TriggerChecksCompleted Trigger = "check-run"
	TriggerReviewComment   Trigger = "review-comment"
	TriggerUnhandled       Trigger = "unhandled"
)

// Event is the classified, normalized form of one webhook delivery. Only
// the fields relevant to the matched trigger are populated.
type Event struct {
	Trigger        Trigger
	Action         string
	InstallationID int64
	Repo           string
	DefaultBranch  string
	IssueNumber    int
	IssueTitle     string
	IssueBody      string
	CommentBody    string
	CheckRunName   string
	HeadSHA        string
	Conclusion     string
	PullRequests   []int
}

// Payload mirrors the subset of a GitHub webhook body the workflow needs.
// Fields not listed here are dropped during decoding.
type Payload struct {
	Action       string        `json:"action"`
	Installation *Installation `json:"installation"`
	Repository   *Repository   `json:"repository"`
	Issue        *Issue        `json:"issue"`
	Comment      *Comment      `json:"comment"`
	CheckRun     *CheckRun     `json:"check_run"`
}

// Installation identifies the GitHub App installation a delivery belongs to.
type Installation struct {
	ID int64 `json:"id"`
}

// Repository carries the repository fields used across all triggers.
type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

// Issue represents the issue object of issues and issue_comment events.
// PullRequest is non-nil when the issue is actually a pull request.
type Issue struct {
	Number      int                 `json:"number"`
	Title       string              `json:"title"`
	Body        string              `json:"body"`
	PullRequest *IssuePullRequestRef `json:"pull_request"`
}

// IssuePullRequestRef marks an issue as the issue-side of a pull request.
type IssuePullRequestRef struct {
	URL string `json:"url"`
}

// Comment is the comment object of issue_comment events.
type Comment struct {
	Body string `json:"body"`
}

// CheckRun is the check_run object of check_run events.
type CheckRun struct {
	Name         string                `json:"name"`
	HeadSHA      string                `json:"head_sha"`
	Conclusion   string                `json:"conclusion"`
	PullRequests []CheckRunPullRequest `json:"pull_requests"`
}

// CheckRunPullRequest references a pull request a check run belongs to.
type CheckRunPullRequest struct {
	Number int `json:"number"`
}
