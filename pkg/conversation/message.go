package conversation

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartImage     PartType = "image"
	PartFile      PartType = "file"
)

// Part is one content segment of a chat message.
type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	// URL is set for image and file parts.
	URL string `json:"url,omitempty"`
	// Name is the original file name of file parts.
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Message is a provider-neutral chat message, as sent to a generation engine.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text concatenates the text parts of the message.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Reasoning concatenates the reasoning parts of the message.
func (m *Message) Reasoning() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartReasoning {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// HasMedia reports whether the message carries image or file parts.
func (m *Message) HasMedia() bool {
	for _, p := range m.Parts {
		if p.Type == PartImage || p.Type == PartFile {
			return true
		}
	}
	return false
}

func (m *Message) View() string {
	text := m.Text()
	// If we are markdown, add a newline so that it becomes valid markdown to parse.
	if strings.HasPrefix(text, "```") {
		text = "\n" + text
	}
	ret := fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(text, "\n"))
	for _, p := range m.Parts {
		switch p.Type {
		case PartImage:
			ret += fmt.Sprintf("\n  (image %s)", p.URL)
		case PartFile:
			ret += fmt.Sprintf("\n  (file %s %s)", p.Name, p.URL)
		case PartText, PartReasoning:
		}
	}
	return ret
}

func NewTextMessage(role Role, text string) *Message {
	return &Message{Role: role, Parts: []Part{{Type: PartText, Text: text}}}
}
