package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload reports a payload missing required keys for the
// matched event type and action.
var ErrMalformedPayload = errors.New("malformed webhook payload")

const (
	reviewerTag   = "[REVIEWER]"
	verdictMarker = "Вердикт:"
)

// Classify maps a raw delivery to a workflow trigger. Events the workflow
// does not act on come back as TriggerUnhandled so the caller can
// acknowledge them; GitHub retries any non-2xx response indefinitely.
func Classify(eventType string, body []byte) (*Event, error) {
	if eventType == "ping" {
		return &Event{Trigger: TriggerPing}, nil
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := &Event{Trigger: TriggerUnhandled, Action: p.Action}
	if p.Installation != nil {
		ev.InstallationID = p.Installation.ID
	}
	if p.Repository != nil {
		ev.Repo = p.Repository.FullName
		ev.DefaultBranch = p.Repository.DefaultBranch
	}

	switch {
	case eventType == "issues" && p.Action == "opened":
		if p.Issue == nil || p.Repository == nil || p.Installation == nil {
			return nil, fmt.Errorf("%w: issues/opened requires issue, repository and installation", ErrMalformedPayload)
		}
		if p.Issue.PullRequest != nil {
			// Pull requests surface through their own deliveries.
			return ev, nil
		}
		ev.Trigger = TriggerIssueOpened
		ev.IssueNumber = p.Issue.Number
		ev.IssueTitle = p.Issue.Title
		ev.IssueBody = p.Issue.Body

	case eventType == "check_run" && p.Action == "completed":
		if p.CheckRun == nil || p.Repository == nil || p.Installation == nil {
			return nil, fmt.Errorf("%w: check_run/completed requires check_run, repository and installation", ErrMalformedPayload)
		}
		ev.Trigger = TriggerChecksCompleted
		ev.CheckRunName = p.CheckRun.Name
		ev.HeadSHA = p.CheckRun.HeadSHA
		ev.Conclusion = p.CheckRun.Conclusion
		for _, pr := range p.CheckRun.PullRequests {
			ev.PullRequests = append(ev.PullRequests, pr.Number)
		}

	case eventType == "issue_comment" && p.Action == "created":
		if p.Comment == nil || p.Issue == nil || p.Repository == nil || p.Installation == nil {
			return nil, fmt.Errorf("%w: issue_comment/created requires comment, issue, repository and installation", ErrMalformedPayload)
		}
		if p.Issue.PullRequest == nil || !IsAgentReview(p.Comment.Body) {
			// Human chatter and plain-issue comments never start a
			// rework round.
			return ev, nil
		}
		ev.Trigger = TriggerReviewComment
		ev.IssueNumber = p.Issue.Number
		ev.IssueTitle = p.Issue.Title
		ev.IssueBody = p.Issue.Body
		ev.CommentBody = p.Comment.Body
	}

	return ev, nil
}

// IsAgentReview reports whether a comment body is review-agent output
// rather than a human comment. Agent reviews carry the verdict marker or
// start with the reviewer tag.
func IsAgentReview(body string) bool {
	return strings.Contains(body, verdictMarker) || strings.HasPrefix(body, reviewerTag)
}
