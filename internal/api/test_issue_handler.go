package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// TestIssueRequest identifies the issue to post a connectivity check
// comment on. Parameters may arrive as a JSON body or as query parameters.
type TestIssueRequest struct {
	InstallationID int64  `json:"installation_id" query:"installation_id"`
	RepoFullName   string `json:"repo_full_name" query:"repo_full_name"`
	IssueNumber    int    `json:"issue_number" query:"issue_number"`
}

// TestIssue posts a marker comment to an issue so an operator can verify
// the GitHub App installation end to end.
func (h *WebhookHandler) TestIssue(c echo.Context) error {
	var req TestIssueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request",
		})
	}

	// echo does not bind query parameters on POST, so fill them in by hand.
	if req.InstallationID == 0 {
		if v, err := strconv.ParseInt(c.QueryParam("installation_id"), 10, 64); err == nil {
			req.InstallationID = v
		}
	}
	if req.RepoFullName == "" {
		req.RepoFullName = c.QueryParam("repo_full_name")
	}
	if req.IssueNumber == 0 {
		if v, err := strconv.Atoi(c.QueryParam("issue_number")); err == nil {
			req.IssueNumber = v
		}
	}

	if req.InstallationID == 0 || req.RepoFullName == "" || req.IssueNumber == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "installation_id, repo_full_name and issue_number are required",
		})
	}

	client := h.platform.ForInstallation(req.InstallationID)
	if err := client.CreateIssueComment(c.Request().Context(), req.RepoFullName, req.IssueNumber, ":robot:"); err != nil {
		log.Printf("[ERROR] Test comment failed for %s#%d: %v", req.RepoFullName, req.IssueNumber, err)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "Comment added"})
}

// ListEvents returns the recorded workflow events for one pull request.
func (h *WebhookHandler) ListEvents(c echo.Context) error {
	if h.events == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "audit store not configured",
		})
	}

	repo := c.QueryParam("repo")
	numberParam := c.QueryParam("number")
	if repo == "" || numberParam == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "repo and number are required",
		})
	}
	number, err := strconv.Atoi(numberParam)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "number must be an integer",
		})
	}

	events, err := h.events.ListByPullRequest(c.Request().Context(), repo, number)
	if err != nil {
		log.Printf("[ERROR] Failed to list events for %s#%d: %v", repo, number, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to list events",
		})
	}

	return c.JSON(http.StatusOK, events)
}
