package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/issueflow/internal/workflow"
)

const reviewerSystemPrompt = `Ты — Reviewer Agent. Твоя задача: проверять pull requests.

Правила:
1. Берем PR title, описание, diff.
2. Проверяем CI результаты.
3. Начинаем ответ с тега [REVIEWER].
4. Включаем строку "Вердикт: approve" или "Вердикт: request changes".
5. Комментируем PR с объяснением.

Отвечаем на русском языке.
`

// Reviewer evaluates pull requests and produces verdict comments. It
// implements workflow.Reviewer.
type Reviewer struct {
	invoker Invoker
}

// NewReviewer returns a Reviewer backed by invoker.
func NewReviewer(invoker Invoker) *Reviewer {
	return &Reviewer{invoker: invoker}
}

var _ workflow.Reviewer = (*Reviewer)(nil)

// Review builds the review context and returns the model's raw comment,
// which the orchestrator posts verbatim.
func (r *Reviewer) Review(ctx context.Context, req workflow.ReviewRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "PR: %s\n", req.Title)
	fmt.Fprintf(&b, "Описание: %s\n", req.Body)
	fmt.Fprintf(&b, "Diff:\n%s\n", req.Diff)
	fmt.Fprintf(&b, "CI: %s", req.CI)

	log.Debug().
		Str("pr", req.Title).
		Str("ci", string(req.CI)).
		Msg("Invoking reviewer")

	return r.invoker.Call(ctx, reviewerSystemPrompt+"\n"+b.String())
}
