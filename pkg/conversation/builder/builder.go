// Package builder turns a branch of the conversation forest into the linear
// message list a generation engine consumes.
package builder

import (
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/models"
)

const pdfMimeType = "application/pdf"

// BuildMessages converts ancestors (root first) and the draft node into chat
// messages, in that order. Attachments are only emitted for attachment types
// caps accepts. A nil draft builds the history alone.
func BuildMessages(
	ancestors []*conversation.Node,
	draft *conversation.Node,
	caps models.Capabilities,
) []*conversation.Message {
	ret := make([]*conversation.Message, 0, len(ancestors)+1)
	for _, n := range ancestors {
		ret = append(ret, nodeMessage(n, caps))
	}
	if draft != nil {
		ret = append(ret, nodeMessage(draft, caps))
	}
	return ret
}

func nodeMessage(n *conversation.Node, caps models.Capabilities) *conversation.Message {
	if n.Type == conversation.KindAssistant {
		msg := &conversation.Message{Role: conversation.RoleAssistant}
		if n.Data.Reasoning != "" {
			msg.Parts = append(msg.Parts, conversation.Part{
				Type: conversation.PartReasoning,
				Text: n.Data.Reasoning,
			})
		}
		msg.Parts = append(msg.Parts, conversation.Part{
			Type: conversation.PartText,
			Text: n.Data.Message,
		})
		return msg
	}

	msg := conversation.NewTextMessage(conversation.RoleUser, n.Data.Message)
	if !caps.AcceptsAttachments() {
		return msg
	}
	for _, a := range n.Data.Attachments {
		if !caps.Accepts(a.Type) {
			continue
		}
		switch a.Type {
		case conversation.AttachmentImage:
			msg.Parts = append(msg.Parts, conversation.Part{
				Type: conversation.PartImage,
				URL:  a.URL,
				Name: a.Name,
			})
		case conversation.AttachmentDocument:
			msg.Parts = append(msg.Parts, conversation.Part{
				Type:     conversation.PartFile,
				URL:      a.URL,
				Name:     a.Name,
				MimeType: pdfMimeType,
			})
		}
	}
	return msg
}
