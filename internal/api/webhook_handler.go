package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/issueflow/internal/store"
	"github.com/issueflow/internal/webhook"
	"github.com/issueflow/internal/workflow"
)

const defaultWorkflowTimeout = 5 * time.Minute

// WebhookHandler receives GitHub webhook deliveries and drives the
// issue-fix workflow for the ones it recognizes.
type WebhookHandler struct {
	secret       string
	orchestrator *workflow.Orchestrator
	platform     workflow.Platform
	events       *store.EventsRepo
	timeout      time.Duration
}

// NewWebhookHandler creates a new webhook handler. The events repo may be
// nil when no database is configured; the /events endpoint reports that.
func NewWebhookHandler(secret string, orchestrator *workflow.Orchestrator, platform workflow.Platform, events *store.EventsRepo, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = defaultWorkflowTimeout
	}
	return &WebhookHandler{
		secret:       secret,
		orchestrator: orchestrator,
		platform:     platform,
		events:       events,
		timeout:      timeout,
	}
}

// Handle processes a single webhook delivery. Deliveries that fail
// signature verification are rejected before the payload is parsed.
func (h *WebhookHandler) Handle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		log.Printf("[ERROR] Failed to read webhook body: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("X-Hub-Signature-256")
	if !webhook.VerifySignature(body, signature, h.secret) {
		log.Printf("[WARN] Rejected webhook delivery with invalid signature")
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid signature",
		})
	}

	eventType := c.Request().Header.Get("X-GitHub-Event")
	event, err := webhook.Classify(eventType, body)
	if err != nil {
		log.Printf("[ERROR] Failed to parse webhook payload: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	deliveryID := c.Request().Header.Get("X-GitHub-Delivery")
	log.Printf("[INFO] Received GitHub webhook: event=%s, trigger=%s, repo=%s, delivery=%s", eventType, event.Trigger, event.Repo, deliveryID)

	switch event.Trigger {
	case webhook.TriggerPing:
		return c.JSON(http.StatusOK, map[string]string{"status": "pong"})
	case webhook.TriggerUnhandled:
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	var handleErr error
	switch event.Trigger {
	case webhook.TriggerIssueOpened:
		handleErr = h.orchestrator.HandleIssueOpened(ctx, event)
	case webhook.TriggerChecksCompleted:
		handleErr = h.orchestrator.HandleChecksCompleted(ctx, event)
	case webhook.TriggerReviewComment:
		handleErr = h.orchestrator.HandleReviewComment(ctx, event)
	}

	// A completed check run on a branch with no open PR is routine, not a
	// failure.
	if errors.Is(handleErr, workflow.ErrNoPullRequest) {
		return c.JSON(http.StatusOK, map[string]string{"status": "check_run without PR"})
	}
	if handleErr != nil {
		log.Printf("[ERROR] Workflow %s failed for %s: %v", event.Trigger, event.Repo, handleErr)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": handleErr.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": string(event.Trigger) + "-completed",
	})
}
