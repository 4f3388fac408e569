package conversation

import "github.com/huandu/go-clone"

// Patch is a partial update of NodeData. Nil fields are left unchanged.
// The tree links (parent and children) cannot be patched.
type Patch struct {
	Message     *string
	Reasoning   *string
	Attachments *[]Attachment
	Config      *GenerationConfig
}

func (p Patch) apply(data *NodeData) {
	if p.Message != nil {
		data.Message = *p.Message
	}
	if p.Reasoning != nil {
		data.Reasoning = *p.Reasoning
	}
	if p.Attachments != nil {
		if len(*p.Attachments) == 0 {
			data.Attachments = []Attachment{}
		} else {
			data.Attachments = clone.Clone(*p.Attachments).([]Attachment)
		}
	}
	if p.Config != nil {
		data.Config = p.Config.Clone()
	}
}

// Updater computes a patch from the current data of a node. It receives a
// copy, so mutating its argument has no effect on the store.
type Updater func(data NodeData) Patch

// AppendMessage appends a streamed text delta to the node message.
func AppendMessage(delta string) Updater {
	return func(data NodeData) Patch {
		m := data.Message + delta
		return Patch{Message: &m}
	}
}

// AppendReasoning appends a streamed reasoning delta.
func AppendReasoning(delta string) Updater {
	return func(data NodeData) Patch {
		r := data.Reasoning + delta
		return Patch{Reasoning: &r}
	}
}

func SetMessage(message string) Updater {
	return func(NodeData) Patch {
		return Patch{Message: &message}
	}
}

func SetConfig(cfg GenerationConfig) Updater {
	return func(NodeData) Patch {
		return Patch{Config: &cfg}
	}
}

func SetAttachments(attachments []Attachment) Updater {
	return func(NodeData) Patch {
		return Patch{Attachments: &attachments}
	}
}

// Combine merges the patches of several updaters; later updaters win.
func Combine(updaters ...Updater) Updater {
	return func(data NodeData) Patch {
		var ret Patch
		for _, u := range updaters {
			p := u(data)
			p.apply(&data)
			if p.Message != nil {
				ret.Message = p.Message
			}
			if p.Reasoning != nil {
				ret.Reasoning = p.Reasoning
			}
			if p.Attachments != nil {
				ret.Attachments = p.Attachments
			}
			if p.Config != nil {
				ret.Config = p.Config
			}
		}
		return ret
	}
}

type EventType string

const (
	EventNodeCreated  EventType = "node-created"
	EventNodeUpdated  EventType = "node-updated"
	EventNodeDeleted  EventType = "node-deleted"
	EventTreeImported EventType = "tree-imported"
)

// StoreEvent describes one committed mutation.
type StoreEvent struct {
	Type    EventType `json:"type"`
	NodeIDs []NodeID  `json:"nodeIds,omitempty"`
}

// Listener is called after a mutation was committed, outside the store lock.
type Listener func(StoreEvent)
