package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"github.com/issueflow/internal/workflow"
)

// Invoker sends one prompt to a model and returns its text output.
type Invoker interface {
	Call(ctx context.Context, input string, options ...llms.CallOption) (string, error)
}

const coderSystemPrompt = `Ты — Coder Agent. Твоя задача: решать задачи из GitHub issues.

Правила:
1. Берем issue title, описание и комментарии.
2. Вносим изменения только в разрешенные файлы.
3. Для каждого измененного файла выводим маркер "=== путь/к/файлу ===" на отдельной строке, затем полное новое содержимое файла.
4. Не используем частичные диффы: в блоке всегда полное содержимое файла.
5. После блоков кратко объясняем, что сделано.

Отвечаем на русском языке.
`

// Coder proposes code changes for fresh issues and for review rounds. It
// implements workflow.Generator.
type Coder struct {
	invoker Invoker
}

// NewCoder returns a Coder backed by invoker.
func NewCoder(invoker Invoker) *Coder {
	return &Coder{invoker: invoker}
}

var _ workflow.Generator = (*Coder)(nil)

// ProposeFix asks the model for a fix for a freshly opened issue.
func (c *Coder) ProposeFix(ctx context.Context, req workflow.IssueFixRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue: %s\n", req.Title)
	fmt.Fprintf(&b, "Описание: %s\n", req.Body)
	b.WriteString("Комментарии:\n")
	b.WriteString(strings.Join(req.Comments, "\n"))
	b.WriteString("\n\nРазрешенные файлы:\n")
	b.WriteString(strings.Join(req.AllowedPaths, "\n"))
	b.WriteString("\n\nФайлы проекта:\n")
	for _, file := range req.Files {
		fmt.Fprintf(&b, "=== %s ===\n%s\n\n", file.Path, file.Content)
	}

	log.Debug().
		Str("issue", req.Title).
		Int("files", len(req.Files)).
		Msg("Invoking coder for issue fix")

	return c.invoker.Call(ctx, coderSystemPrompt+"\n"+b.String())
}

// ProposeRework asks the model to address a reviewer's comment on the
// files already part of the pull request.
func (c *Coder) ProposeRework(ctx context.Context, req workflow.ReworkRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "PR: %s\n", req.Title)
	fmt.Fprintf(&b, "Описание: %s\n", req.Body)
	fmt.Fprintf(&b, "Diff:\n%s\n", req.Diff)
	fmt.Fprintf(&b, "Комментарий ревьюера: %s\n", req.ReviewComment)
	fmt.Fprintf(&b, "Итерация: %d/%d\n", req.Iteration, req.MaxIterations)
	b.WriteString("Разрешенные файлы:\n")
	b.WriteString(strings.Join(req.AllowedPaths, "\n"))

	log.Debug().
		Str("pr", req.Title).
		Int("iteration", req.Iteration).
		Msg("Invoking coder for rework")

	return c.invoker.Call(ctx, coderSystemPrompt+"\n"+b.String())
}
