package workflow

import "strings"

// File pairs a repository path with full file content. It is used both
// for the current files handed to the generation agent and for the
// rewritten files parsed back out of its response.
type File struct {
	Path    string
	Content string
}

// ParseChangeset extracts file blocks from generation-agent output. A
// block starts with a marker line "=== <path> ===" and runs until the
// next marker or the end of the text; its content is trimmed of leading
// and trailing whitespace. Text without markers parses to an empty
// changeset. When a path repeats, the last block wins but keeps the first
// block's position so the apply order stays deterministic.
func ParseChangeset(text string) []File {
	var (
		changes []File
		index   = make(map[string]int)
		path    string
		lines   []string
	)

	flush := func() {
		if path == "" {
			return
		}
		content := strings.TrimSpace(strings.Join(lines, "\n"))
		if i, ok := index[path]; ok {
			changes[i].Content = content
			return
		}
		index[path] = len(changes)
		changes = append(changes, File{Path: path, Content: content})
	}

	for _, line := range strings.Split(text, "\n") {
		if p, ok := parseMarker(strings.TrimSpace(line)); ok {
			flush()
			path, lines = p, nil
			continue
		}
		lines = append(lines, line)
	}
	flush()

	return changes
}

func parseMarker(line string) (string, bool) {
	if len(line) < len("=== x ===") {
		return "", false
	}
	if !strings.HasPrefix(line, "=== ") || !strings.HasSuffix(line, " ===") {
		return "", false
	}
	path := strings.TrimSpace(line[4 : len(line)-4])
	if path == "" {
		return "", false
	}
	return path, true
}
