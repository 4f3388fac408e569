package conversation

import (
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
)

// NodeID identifies a node in the conversation forest. IDs are random UUIDs
// rendered as strings so that documents written by other clients round-trip
// unchanged.
type NodeID string

func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

func (id NodeID) String() string {
	return string(id)
}

// NullNode is the zero NodeID. Roots carry it as their parent.
const NullNode NodeID = ""

type NodeKind string

const (
	KindUser      NodeKind = "userMessage"
	KindAssistant NodeKind = "assistantMessage"
)

func (k NodeKind) IsValid() bool {
	return k == KindUser || k == KindAssistant
}

// Role maps a node kind to the chat role it plays in a generation request.
func (k NodeKind) Role() Role {
	if k == KindAssistant {
		return RoleAssistant
	}
	return RoleUser
}

type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentDocument AttachmentType = "pdf"
)

type Attachment struct {
	Type AttachmentType `json:"type" yaml:"type" jsonschema:"enum=image,enum=pdf"`
	Name string         `json:"name" yaml:"name"`
	URL  string         `json:"url" yaml:"url"`
}

// GenerationConfig is the per-node snapshot of model choice and sampling
// parameters. Children inherit a deep copy of their parent's config.
type GenerationConfig struct {
	Model        string  `json:"model" yaml:"model"`
	SystemPrompt string  `json:"systemPrompt" yaml:"system_prompt"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	ThinkingMode bool    `json:"thinkingMode" yaml:"thinking_mode"`
}

func (c GenerationConfig) Clone() GenerationConfig {
	return clone.Clone(c).(GenerationConfig)
}

// DefaultModel is the model new roots start with unless the store was built
// with WithDefaultConfig.
const DefaultModel = "gemini-2.0-flash-lite"

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Model:        DefaultModel,
		SystemPrompt: "",
		Temperature:  1,
		ThinkingMode: false,
	}
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeData holds the mutable content of a node.
type NodeData struct {
	Config      GenerationConfig `json:"config"`
	Message     string           `json:"message"`
	Reasoning   string           `json:"reasoning,omitempty"`
	Attachments []Attachment     `json:"attachments"`
	ParentID    NodeID           `json:"parentId,omitempty"`
	ChildrenIDs []NodeID         `json:"childrenIds"`
}

// Node is one message in the conversation forest.
type Node struct {
	ID       NodeID      `json:"id" jsonschema:"required,minLength=1"`
	Type     NodeKind    `json:"type" jsonschema:"required,enum=userMessage,enum=assistantMessage"`
	Position Position    `json:"position"`
	Measured *Dimensions `json:"measured,omitempty"`
	Data     NodeData    `json:"data" jsonschema:"required"`
}

func (n *Node) IsRoot() bool {
	return n.Data.ParentID == NullNode
}

func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	ret := clone.Clone(n).(*Node)
	if ret.Data.Attachments == nil {
		ret.Data.Attachments = []Attachment{}
	}
	if ret.Data.ChildrenIDs == nil {
		ret.Data.ChildrenIDs = []NodeID{}
	}
	return ret
}

// Edge mirrors a parent→child link for renderers. It is derivable from the
// nodes and never the source of truth.
type Edge struct {
	ID     string `json:"id" jsonschema:"required"`
	Source NodeID `json:"source" jsonschema:"required,minLength=1"`
	Target NodeID `json:"target" jsonschema:"required,minLength=1"`
}

func EdgeID(source, target NodeID) string {
	return string(source) + ">" + string(target)
}

func NewEdge(source, target NodeID) Edge {
	return Edge{
		ID:     EdgeID(source, target),
		Source: source,
		Target: target,
	}
}
