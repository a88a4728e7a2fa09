package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/attestia/attestia/pkg/types"
)

// Attachment rendering budgets. At most maxAttachments are considered; each
// inlined item is truncated to maxAttachmentChars; inlining stops once
// roughly maxTotalChars of attachment text has been rendered, with the
// remainder referenced by name only.
const (
	maxAttachments     = 10
	maxAttachmentChars = 2000
	maxTotalChars      = 8000
)

// textLikeTypes are the content types whose payload is inlined into the
// prompt. Anything else is referenced by name.
var textLikeTypes = map[string]bool{
	"":                 true,
	"text/plain":       true,
	"text/markdown":    true,
	"text/csv":         true,
	"text/html":        true,
	"application/json": true,
	"application/xml":  true,
}

func isTextLike(contentType string) bool {
	if textLikeTypes[contentType] {
		return true
	}
	return strings.HasPrefix(contentType, "text/")
}

// renderAttachments builds the prompt suffix for a turn's attachments.
// It returns the rendered text (empty when there are no attachments) and
// the number of attachments actually inlined.
func renderAttachments(attachments []types.Attachment) (string, int) {
	if len(attachments) == 0 {
		return "", 0
	}
	if len(attachments) > maxAttachments {
		attachments = attachments[:maxAttachments]
	}

	var sb strings.Builder
	inlined := 0
	budget := maxTotalChars
	for i, att := range attachments {
		name := att.Name
		if name == "" {
			name = fmt.Sprintf("attachment-%d", i+1)
		}

		if !isTextLike(att.Type) || att.Content == "" {
			fmt.Fprintf(&sb, "\n[Attached file: %s (%s) — content not inlined]\n", name, att.Type)
			continue
		}

		content := att.Content
		if len(content) > maxAttachmentChars {
			content = truncateAtRune(content, maxAttachmentChars) + "…"
		}
		if len(content) > budget {
			fmt.Fprintf(&sb, "\n[Attached file: %s — omitted, attachment budget exhausted]\n", name)
			continue
		}

		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", name, content)
		budget -= len(content)
		inlined++
	}
	return sb.String(), inlined
}

// truncateAtRune cuts s to at most max bytes without splitting a UTF-8
// rune; the model never sees a mangled trailing byte sequence.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// assemblePrompt combines the caller's prompt with rendered attachments.
func assemblePrompt(prompt string, attachments []types.Attachment) (string, int) {
	rendered, inlined := renderAttachments(attachments)
	if rendered == "" {
		return prompt, 0
	}
	return prompt + "\n" + rendered, inlined
}
