package telegram

import "strings"

// SplitMessage cuts text into chunks of at most maxLen runes. A chunk ends
// after its last newline when that newline lies in the chunk's second half.
func SplitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(runes) > maxLen {
		cut := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

// Legacy Markdown escapes only these four outside an entity.
var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// EscapeMarkdown escapes user-supplied text for legacy Markdown messages.
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// FixMarkdown closes a code block or inline code span left open, which
// Telegram rejects.
func FixMarkdown(text string) string {
	if strings.Count(text, "```")%2 != 0 {
		text += "\n```"
	}
	return closeInlineCode(text)
}

func closeInlineCode(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 1)
	inBlock, inSpan := false, false

	for i := 0; i < len(text); i++ {
		if strings.HasPrefix(text[i:], "```") {
			if inSpan {
				b.WriteByte('`')
				inSpan = false
			}
			inBlock = !inBlock
			b.WriteString("```")
			i += 2
			continue
		}
		c := text[i]
		if c == '`' && !inBlock && (i == 0 || text[i-1] != '\\') {
			inSpan = !inSpan
		}
		b.WriteByte(c)
	}
	if inSpan {
		b.WriteByte('`')
	}
	return b.String()
}
