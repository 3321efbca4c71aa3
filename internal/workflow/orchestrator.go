package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/issueflow/internal/webhook"
)

// DefaultMaxIterations bounds how many generation rounds one pull request
// may consume before human intervention is required.
const DefaultMaxIterations = 5

// ErrNoPullRequest reports a check_run delivery that references no pull
// request; the webhook layer acknowledges it without review work.
var ErrNoPullRequest = errors.New("check_run references no pull request")

// CIStatus classifies the combined check state of a commit.
type CIStatus string

const (
	CISuccess CIStatus = "success"
	CIFailure CIStatus = "failure"
	CIPending CIStatus = "pending"
	CINoCI    CIStatus = "no_ci"
)

// Issue carries the metadata the workflow reads from a platform issue.
type Issue struct {
	Number int
	Title  string
	Body   string
}

// PullRequest carries the metadata the workflow reads from a platform
// pull request.
type PullRequest struct {
	Number  int
	Title   string
	Body    string
	HeadRef string
	HeadSHA string
	BaseRef string
}

// Platform mints installation-scoped platform clients.
type Platform interface {
	ForInstallation(installationID int64) PlatformClient
}

// PlatformClient is the narrow platform surface the orchestrator drives.
// Implementations treat binary or oversized files as absent rather than
// failing, so GetFileContent reports presence separately from errors.
type PlatformClient interface {
	GetIssue(ctx context.Context, repo string, number int) (*Issue, error)
	ListIssueComments(ctx context.Context, repo string, number int) ([]string, error)
	CreateIssueComment(ctx context.Context, repo string, number int, body string) error
	GetPullRequest(ctx context.Context, repo string, number int) (*PullRequest, error)
	GetPullRequestDiff(ctx context.Context, repo string, number int) (string, error)
	ListPullRequestFiles(ctx context.Context, repo string, number int) ([]string, error)
	CreatePullRequest(ctx context.Context, repo, title, head, base, body string) (*PullRequest, error)
	CreateBranch(ctx context.Context, repo, branch, base string) error
	ListFiles(ctx context.Context, repo, ref string) ([]string, error)
	GetFileContent(ctx context.Context, repo, path, ref string) (string, bool, error)
	UpsertFile(ctx context.Context, repo, branch, path, content, message string) error
	CombinedStatus(ctx context.Context, repo, ref string) (CIStatus, error)
}

// IssueFixRequest is the generation input assembled from a fresh issue.
type IssueFixRequest struct {
	Title        string
	Body         string
	Comments     []string
	Files        []File
	AllowedPaths []string
}

// ReworkRequest is the generation input assembled from a review round.
type ReworkRequest struct {
	Title         string
	Body          string
	Diff          string
	ReviewComment string
	AllowedPaths  []string
	Iteration     int
	MaxIterations int
}

// ReviewRequest is the input handed to the review agent.
type ReviewRequest struct {
	Title string
	Body  string
	Diff  string
	CI    CIStatus
}

// Generator proposes file changes for an issue or a review round. The
// returned text is parsed with ParseChangeset.
type Generator interface {
	ProposeFix(ctx context.Context, req IssueFixRequest) (string, error)
	ProposeRework(ctx context.Context, req ReworkRequest) (string, error)
}

// Reviewer evaluates a pull request and returns free-form review text
// suitable for posting as a comment.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (string, error)
}

// AuditEvent is one workflow action worth keeping an audit trail of.
type AuditEvent struct {
	Repo      string
	Number    int
	Trigger   string
	Verdict   string
	Iteration int
	Detail    string
}

// Recorder persists audit events. Implementations must be safe for
// concurrent use; recording failures never fail the workflow.
type Recorder interface {
	Record(ctx context.Context, event AuditEvent) error
}

// Orchestrator drives the issue → fix → review cycle. Each handler
// corresponds to one classified trigger and performs its platform calls
// sequentially; the only shared state is the iteration tracker.
type Orchestrator struct {
	platform      Platform
	generator     Generator
	reviewer      Reviewer
	tracker       *Tracker
	recorder      Recorder
	maxIterations int
}

// NewOrchestrator wires the collaborators together. A nil recorder
// disables the audit trail; maxIterations falls back to
// DefaultMaxIterations when not positive.
func NewOrchestrator(platform Platform, generator Generator, reviewer Reviewer, tracker *Tracker, recorder Recorder, maxIterations int) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Orchestrator{
		platform:      platform,
		generator:     generator,
		reviewer:      reviewer,
		tracker:       tracker,
		recorder:      recorder,
		maxIterations: maxIterations,
	}
}

// HandleIssueOpened turns a freshly opened issue into a pull request with
// a generated fix. Steps are logged individually: GitHub redelivers on
// failure and a re-run after a partial failure hits already-created
// branches, so the log must show how far the first attempt got.
func (o *Orchestrator) HandleIssueOpened(ctx context.Context, ev *webhook.Event) error {
	client := o.platform.ForInstallation(ev.InstallationID)

	comments, err := client.ListIssueComments(ctx, ev.Repo, ev.IssueNumber)
	if err != nil {
		return fmt.Errorf("list comments for issue #%d: %w", ev.IssueNumber, err)
	}

	base := ev.DefaultBranch
	if base == "" {
		base = "main"
	}

	paths, err := client.ListFiles(ctx, ev.Repo, base)
	if err != nil {
		return fmt.Errorf("list files on %s: %w", base, err)
	}

	var (
		files   []File
		allowed []string
	)
	for _, path := range paths {
		content, ok, err := client.GetFileContent(ctx, ev.Repo, path, base)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !ok {
			continue
		}
		files = append(files, File{Path: path, Content: content})
		allowed = append(allowed, path)
	}

	raw, err := o.generator.ProposeFix(ctx, IssueFixRequest{
		Title:        ev.IssueTitle,
		Body:         ev.IssueBody,
		Comments:     comments,
		Files:        files,
		AllowedPaths: allowed,
	})
	if err != nil {
		return fmt.Errorf("generate fix for issue #%d: %w", ev.IssueNumber, err)
	}

	changes := ParseChangeset(raw)
	if len(changes) == 0 {
		return fmt.Errorf("generation returned no file changes for issue #%d", ev.IssueNumber)
	}

	branch := branchForIssue(ev.IssueNumber)
	if err := client.CreateBranch(ctx, ev.Repo, branch, base); err != nil {
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	log.Printf("[INFO] created branch %s from %s in %s", branch, base, ev.Repo)

	message := fmt.Sprintf("Fix issue #%d", ev.IssueNumber)
	for _, change := range changes {
		if err := client.UpsertFile(ctx, ev.Repo, branch, change.Path, change.Content, message); err != nil {
			return fmt.Errorf("write %s on %s: %w", change.Path, branch, err)
		}
	}
	log.Printf("[INFO] committed %d files to %s in %s", len(changes), branch, ev.Repo)

	title := fmt.Sprintf("Fix issue #%d: %s", ev.IssueNumber, ev.IssueTitle)
	body := fmt.Sprintf("Automated fix for issue #%d.\n\nCloses #%d", ev.IssueNumber, ev.IssueNumber)
	pr, err := client.CreatePullRequest(ctx, ev.Repo, title, branch, base, body)
	if err != nil {
		return fmt.Errorf("create pull request for issue #%d: %w", ev.IssueNumber, err)
	}
	log.Printf("[INFO] opened PR #%d for issue #%d in %s", pr.Number, ev.IssueNumber, ev.Repo)

	key := Key{Repo: ev.Repo, Number: pr.Number}
	if err := o.tracker.Initialize(key, 1); err != nil {
		if !errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("initialize iteration state for PR #%d: %w", pr.Number, err)
		}
		log.Printf("[WARN] iteration state for %s#%d already initialized", ev.Repo, pr.Number)
	}

	o.record(ctx, AuditEvent{
		Repo:      ev.Repo,
		Number:    pr.Number,
		Trigger:   string(webhook.TriggerIssueOpened),
		Iteration: 1,
		Detail:    fmt.Sprintf("issue #%d, branch %s, %d files", ev.IssueNumber, branch, len(changes)),
	})
	return nil
}

// HandleChecksCompleted reviews the pull request a finished check run
// belongs to and posts the review verbatim as a comment. Review rounds do
// not consume the iteration budget.
func (o *Orchestrator) HandleChecksCompleted(ctx context.Context, ev *webhook.Event) error {
	if len(ev.PullRequests) == 0 {
		return ErrNoPullRequest
	}

	client := o.platform.ForInstallation(ev.InstallationID)
	number := ev.PullRequests[0]

	pr, err := client.GetPullRequest(ctx, ev.Repo, number)
	if err != nil {
		return fmt.Errorf("get PR #%d: %w", number, err)
	}

	diff, err := client.GetPullRequestDiff(ctx, ev.Repo, number)
	if err != nil {
		return fmt.Errorf("get diff for PR #%d: %w", number, err)
	}

	ref := ev.HeadSHA
	if ref == "" {
		ref = pr.HeadSHA
	}
	status, err := client.CombinedStatus(ctx, ev.Repo, ref)
	if err != nil {
		return fmt.Errorf("get combined status for %s: %w", ref, err)
	}

	review, err := o.reviewer.Review(ctx, ReviewRequest{
		Title: pr.Title,
		Body:  pr.Body,
		Diff:  diff,
		CI:    status,
	})
	if err != nil {
		return fmt.Errorf("review PR #%d: %w", number, err)
	}

	if err := client.CreateIssueComment(ctx, ev.Repo, number, review); err != nil {
		return fmt.Errorf("post review on PR #%d: %w", number, err)
	}
	log.Printf("[INFO] posted review on %s#%d (check %q, CI %s)", ev.Repo, number, ev.CheckRunName, status)

	o.record(ctx, AuditEvent{
		Repo:    ev.Repo,
		Number:  number,
		Trigger: string(webhook.TriggerChecksCompleted),
		Detail:  fmt.Sprintf("check %q concluded %s, CI %s", ev.CheckRunName, ev.Conclusion, status),
	})
	return nil
}

// HandleReviewComment reacts to a review-agent verdict. Approve is
// terminal. Request-changes charges one iteration up front, so a failed
// generation round still counts against the cap, then reworks the files
// on the pull request's existing head branch.
func (o *Orchestrator) HandleReviewComment(ctx context.Context, ev *webhook.Event) error {
	key := Key{Repo: ev.Repo, Number: ev.IssueNumber}
	verdict := ClassifyVerdict(ev.CommentBody)

	if verdict == VerdictApprove {
		log.Printf("[INFO] review approved %s#%d", ev.Repo, ev.IssueNumber)
		o.record(ctx, AuditEvent{
			Repo:      ev.Repo,
			Number:    ev.IssueNumber,
			Trigger:   string(webhook.TriggerReviewComment),
			Verdict:   verdict.String(),
			Iteration: o.tracker.GetOrInit(key),
		})
		return nil
	}

	client := o.platform.ForInstallation(ev.InstallationID)

	count, exceeded := o.tracker.IncrementIfActive(key, o.maxIterations)
	if exceeded {
		log.Printf("[WARN] iteration limit reached for %s#%d (count %d)", ev.Repo, ev.IssueNumber, count)
		msg := fmt.Sprintf(":robot: Достигнут лимит итераций (%d из %d). Дальнейшие правки требуют ручного вмешательства.", count, o.maxIterations)
		if err := client.CreateIssueComment(ctx, ev.Repo, ev.IssueNumber, msg); err != nil {
			return fmt.Errorf("post limit comment on PR #%d: %w", ev.IssueNumber, err)
		}
		o.record(ctx, AuditEvent{
			Repo:      ev.Repo,
			Number:    ev.IssueNumber,
			Trigger:   string(webhook.TriggerReviewComment),
			Verdict:   verdict.String(),
			Iteration: count,
			Detail:    "iteration limit reached",
		})
		return nil
	}
	log.Printf("[INFO] rework round %d/%d for %s#%d", count, o.maxIterations, ev.Repo, ev.IssueNumber)

	pr, err := client.GetPullRequest(ctx, ev.Repo, ev.IssueNumber)
	if err != nil {
		return fmt.Errorf("get PR #%d: %w", ev.IssueNumber, err)
	}

	diff, err := client.GetPullRequestDiff(ctx, ev.Repo, ev.IssueNumber)
	if err != nil {
		return fmt.Errorf("get diff for PR #%d: %w", ev.IssueNumber, err)
	}

	allowed, err := client.ListPullRequestFiles(ctx, ev.Repo, ev.IssueNumber)
	if err != nil {
		return fmt.Errorf("list files for PR #%d: %w", ev.IssueNumber, err)
	}

	raw, err := o.generator.ProposeRework(ctx, ReworkRequest{
		Title:         pr.Title,
		Body:          pr.Body,
		Diff:          diff,
		ReviewComment: ev.CommentBody,
		AllowedPaths:  allowed,
		Iteration:     count,
		MaxIterations: o.maxIterations,
	})
	if err != nil {
		return fmt.Errorf("generate rework for PR #%d: %w", ev.IssueNumber, err)
	}

	changes := ParseChangeset(raw)
	if len(changes) == 0 {
		return fmt.Errorf("generation returned no file changes for PR #%d", ev.IssueNumber)
	}

	// Edits land on the branch that already has the open PR, never on a
	// fresh branch, so the review history stays in one place.
	message := fmt.Sprintf("Rework #%d for PR #%d", count, pr.Number)
	for _, change := range changes {
		if err := client.UpsertFile(ctx, ev.Repo, pr.HeadRef, change.Path, change.Content, message); err != nil {
			return fmt.Errorf("write %s on %s: %w", change.Path, pr.HeadRef, err)
		}
	}
	log.Printf("[INFO] committed %d reworked files to %s in %s", len(changes), pr.HeadRef, ev.Repo)

	o.record(ctx, AuditEvent{
		Repo:      ev.Repo,
		Number:    pr.Number,
		Trigger:   string(webhook.TriggerReviewComment),
		Verdict:   verdict.String(),
		Iteration: count,
		Detail:    fmt.Sprintf("%d files reworked on %s", len(changes), pr.HeadRef),
	})
	return nil
}

func (o *Orchestrator) record(ctx context.Context, ev AuditEvent) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, ev); err != nil {
		log.Printf("[WARN] audit record failed for %s#%d: %v", ev.Repo, ev.Number, err)
	}
}

func branchForIssue(number int) string {
	return fmt.Sprintf("fix-issue-%d", number)
}
