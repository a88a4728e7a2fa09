package gateway

import (
	"fmt"

	"github.com/attestia/attestia/pkg/types"
)

// Attachment limits enforced before anything reaches the engine. The engine
// applies its own, much smaller, inlining budget; these ceilings bound what
// a request may carry at all.
const (
	maxAttachmentCount      = 10
	maxAttachmentItemChars  = 50_000
	maxAttachmentTotalChars = 200_000
)

// attachmentPayload is the wire shape of one attachment.
type attachmentPayload struct {
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
	Data    string `json:"data,omitempty"`
}

// normalizeAttachments validates the attachment array and converts it to
// the engine's type. Violations are reported in a fixed order: too many
// items, then the first oversized item, then the combined total.
func normalizeAttachments(in []attachmentPayload) ([]types.Attachment, error) {
	if len(in) == 0 {
		return nil, nil
	}
	if len(in) > maxAttachmentCount {
		return nil, fmt.Errorf("too many attachments: %d exceeds the maximum of %d", len(in), maxAttachmentCount)
	}

	total := 0
	for i, a := range in {
		size := len(a.Content) + len(a.Data)
		if size > maxAttachmentItemChars {
			return nil, fmt.Errorf("attachment %d (%s) is too large: %d characters exceeds the per-item limit of %d",
				i, displayName(a, i), size, maxAttachmentItemChars)
		}
		total += size
	}
	if total > maxAttachmentTotalChars {
		return nil, fmt.Errorf("attachments are too large: %d combined characters exceeds the limit of %d",
			total, maxAttachmentTotalChars)
	}

	out := make([]types.Attachment, len(in))
	for i, a := range in {
		out[i] = types.Attachment{
			Name:    a.Name,
			Type:    a.Type,
			Content: a.Content,
			Data:    a.Data,
		}
	}
	return out, nil
}

func displayName(a attachmentPayload, i int) string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("unnamed #%d", i)
}
