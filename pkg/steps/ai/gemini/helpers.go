package gemini

import (
	"mime"
	"path"
	"strings"

	"github.com/go-go-golems/arbor/pkg/conversation"
	genai "github.com/google/generative-ai-go/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

func roleToGeminiRole(r conversation.Role) string {
	if r == conversation.RoleAssistant {
		return roleModel
	}
	return roleUser
}

func guessMimeType(p conversation.Part) string {
	if p.MimeType != "" {
		return p.MimeType
	}
	name := p.Name
	if name == "" {
		name = p.URL
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); t != "" {
		return t
	}
	if p.Type == conversation.PartFile {
		return "application/pdf"
	}
	return "image/jpeg"
}

// messageToGeminiContent returns nil for messages without any content, which
// the API rejects.
func messageToGeminiContent(m *conversation.Message) *genai.Content {
	var parts []genai.Part
	for _, p := range m.Parts {
		switch p.Type {
		case conversation.PartText:
			if strings.TrimSpace(p.Text) != "" {
				parts = append(parts, genai.Text(p.Text))
			}
		case conversation.PartImage, conversation.PartFile:
			parts = append(parts, genai.FileData{MIMEType: guessMimeType(p), URI: p.URL})
		case conversation.PartReasoning:
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return &genai.Content{Role: roleToGeminiRole(m.Role), Parts: parts}
}

// splitHistory converts messages and separates the trailing user turn, which
// is sent as the new chat message, from the preceding history.
func splitHistory(msgs []*conversation.Message) ([]*genai.Content, []genai.Part) {
	var contents []*genai.Content
	for _, m := range msgs {
		if c := messageToGeminiContent(m); c != nil {
			contents = append(contents, c)
		}
	}
	if len(contents) == 0 {
		return nil, nil
	}
	last := contents[len(contents)-1]
	if last.Role != roleUser {
		return contents, nil
	}
	return contents[:len(contents)-1], last.Parts
}
