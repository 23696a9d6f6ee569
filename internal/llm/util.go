package llm

import "strings"

// CleanJSONBlock strips markdown fences, leading prose and trailing prose
// around the first JSON object or array in text.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Skip a language identifier on the first line
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.ContainsAny(firstLine, "{[") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	open, closing := byte('{'), byte('}')
	if text[start] == '[' {
		open, closing = '[', ']'
	}
	if balanced := extractBalanced(text[start:], open, closing); balanced != "" {
		return balanced
	}
	return text
}

// extractBalanced returns the prefix of s from its opening delimiter to the
// matching closing one, skipping delimiters inside JSON strings.
// It returns "" if s does not start with open or is unbalanced.
func extractBalanced(s string, open, closing byte) string {
	if len(s) == 0 || s[0] != open {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
