package llm

import "strings"

// CleanJSON strips markdown code fences and any prose around the outermost
// JSON value in a model reply. An array is returned whole so callers can
// reject it instead of reading its first element as the object.
func CleanJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```JSON")
		content = strings.TrimPrefix(content, "```")
		if i := strings.LastIndex(content, "```"); i >= 0 {
			content = content[:i]
		}
		content = strings.TrimSpace(content)
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if open := strings.Index(content, "["); open >= 0 && (start < 0 || open < start) {
		if closing := strings.LastIndex(content, "]"); closing > open && closing > end {
			return content[open : closing+1]
		}
	}
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
