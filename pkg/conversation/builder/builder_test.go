package builder

import (
	"testing"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	imageOnly = models.Capabilities{Attachments: models.AttachmentCapabilities{Image: true}}
	noMedia   = models.Capabilities{}
	allMedia  = models.Capabilities{Attachments: models.AttachmentCapabilities{Image: true, PDF: true}}
)

func buildBranch(t *testing.T) (*conversation.Store, conversation.NodeID) {
	s := conversation.NewStore()
	root := s.CreateRoot(conversation.Position{})
	require.NoError(t, s.UpdateNode(root, conversation.Combine(
		conversation.SetMessage("Describe these"),
		conversation.SetAttachments([]conversation.Attachment{
			{Type: conversation.AttachmentImage, Name: "cat.png", URL: "https://files.example/cat.png"},
			{Type: conversation.AttachmentDocument, Name: "paper.pdf", URL: "https://files.example/paper.pdf"},
		}),
	)))
	a, err := s.CreateAssistantNode(root)
	require.NoError(t, err)
	require.NoError(t, s.UpdateNode(a, conversation.Combine(
		conversation.AppendReasoning("look at the image"),
		conversation.AppendMessage("A cat and a paper."),
	)))
	u, _, err := s.CreateExchange(a)
	require.NoError(t, err)
	require.NoError(t, s.UpdateNode(u, conversation.SetMessage("Which is older?")))
	return s, u
}

func TestBuildMessagesRootToLeaf(t *testing.T) {
	s, u := buildBranch(t)
	ancestors, err := s.GetAncestors(u)
	require.NoError(t, err)
	draft, err := s.Get(u)
	require.NoError(t, err)

	msgs := BuildMessages(ancestors, draft, allMedia)
	require.Len(t, msgs, 3)

	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, "Describe these", msgs[0].Text())
	require.Len(t, msgs[0].Parts, 3)
	assert.Equal(t, conversation.Part{Type: conversation.PartImage, URL: "https://files.example/cat.png", Name: "cat.png"}, msgs[0].Parts[1])
	assert.Equal(t, conversation.PartFile, msgs[0].Parts[2].Type)
	assert.Equal(t, "paper.pdf", msgs[0].Parts[2].Name)
	assert.Equal(t, "application/pdf", msgs[0].Parts[2].MimeType)

	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Parts, 2)
	assert.Equal(t, conversation.PartReasoning, msgs[1].Parts[0].Type)
	assert.Equal(t, "A cat and a paper.", msgs[1].Text())

	assert.Equal(t, conversation.RoleUser, msgs[2].Role)
	assert.Equal(t, "Which is older?", msgs[2].Text())
}

func TestBuildMessagesFiltersAttachments(t *testing.T) {
	s, u := buildBranch(t)
	ancestors, err := s.GetAncestors(u)
	require.NoError(t, err)

	msgs := BuildMessages(ancestors, nil, noMedia)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].HasMedia())
	require.Len(t, msgs[0].Parts, 1)

	msgs = BuildMessages(ancestors, nil, imageOnly)
	require.Len(t, msgs[0].Parts, 2)
	assert.Equal(t, conversation.PartImage, msgs[0].Parts[1].Type)
}

func TestBuildMessagesAssistantWithoutReasoning(t *testing.T) {
	n := &conversation.Node{Type: conversation.KindAssistant, Data: conversation.NodeData{Message: "hi"}}
	msgs := BuildMessages(nil, n, allMedia)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 1)
	assert.Equal(t, "hi", msgs[0].Text())
}

func TestCountTokens(t *testing.T) {
	empty, err := CountTokens(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty)

	short, err := CountTokens([]*conversation.Message{conversation.NewTextMessage(conversation.RoleUser, "hello")})
	require.NoError(t, err)
	long, err := CountTokens([]*conversation.Message{
		conversation.NewTextMessage(conversation.RoleUser, "hello"),
		conversation.NewTextMessage(conversation.RoleAssistant, "hello there, how can I help you today?"),
	})
	require.NoError(t, err)
	assert.Greater(t, short, perMessageOverhead)
	assert.Greater(t, long, short+perMessageOverhead)
}
