package conversation

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Store is the single owner of the node and edge collections of a
// conversation forest.
//
// Every mutation takes the write lock once and leaves the store in a state
// where the parent/children links and the edges agree, so readers never see a
// half-applied change. Readers receive deep copies.
//
// The store keeps insertion order for nodes and edges so that exported
// documents are stable across runs.
type Store struct {
	mu sync.RWMutex

	nodes     map[NodeID]*Node
	nodeOrder []NodeID
	edges     map[string]Edge
	edgeOrder []string

	defaultConfig GenerationConfig
	listeners     []Listener
}

type StoreOption func(*Store)

// WithDefaultConfig sets the generation config given to new roots.
func WithDefaultConfig(cfg GenerationConfig) StoreOption {
	return func(s *Store) {
		s.defaultConfig = cfg.Clone()
	}
}

// WithListener registers a listener that is called after every mutation.
func WithListener(l Listener) StoreOption {
	return func(s *Store) {
		s.listeners = append(s.listeners, l)
	}
}

func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		nodes:         map[NodeID]*Node{},
		edges:         map[string]Edge{},
		defaultConfig: DefaultGenerationConfig(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// AddListener registers l for all subsequent mutations.
func (s *Store) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) emit(events ...StoreEvent) {
	s.mu.RLock()
	listeners := append([]Listener{}, s.listeners...)
	s.mu.RUnlock()

	for _, e := range events {
		for _, l := range listeners {
			l(e)
		}
	}
}

func (s *Store) DefaultConfig() GenerationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultConfig.Clone()
}

// CreateRoot inserts a new user node without parent and returns its id.
func (s *Store) CreateRoot(position Position) NodeID {
	s.mu.Lock()
	id := NewNodeID()
	s.insertNodeLocked(&Node{
		ID:       id,
		Type:     KindUser,
		Position: position,
		Data: NodeData{
			Config:      s.defaultConfig.Clone(),
			Attachments: []Attachment{},
			ChildrenIDs: []NodeID{},
		},
	})
	s.mu.Unlock()

	log.Debug().Str("node_id", id.String()).Msg("Created root node")
	s.emit(StoreEvent{Type: EventNodeCreated, NodeIDs: []NodeID{id}})
	return id
}

// CreateChild adds a node of the given kind below parentID. The config is
// copied from the parent, the node is positioned below it and the parent
// link, the children list and the edge are written together.
func (s *Store) CreateChild(parentID NodeID, kind NodeKind) (NodeID, error) {
	if !kind.IsValid() {
		return NullNode, errors.Errorf("invalid node kind %q", kind)
	}

	s.mu.Lock()
	id, err := s.createChildLocked(parentID, kind)
	s.mu.Unlock()
	if err != nil {
		return NullNode, err
	}

	log.Debug().
		Str("node_id", id.String()).
		Str("parent_id", parentID.String()).
		Str("kind", string(kind)).
		Msg("Created child node")
	s.emit(
		StoreEvent{Type: EventNodeCreated, NodeIDs: []NodeID{id}},
		StoreEvent{Type: EventNodeUpdated, NodeIDs: []NodeID{parentID}},
	)
	return id, nil
}

func (s *Store) CreateUserNode(parentID NodeID) (NodeID, error) {
	return s.CreateChild(parentID, KindUser)
}

func (s *Store) CreateAssistantNode(parentID NodeID) (NodeID, error) {
	return s.CreateChild(parentID, KindAssistant)
}

// CreateExchange creates a user node below parentID and an empty assistant
// node below that user node in one step. Either both nodes (and both edges)
// are written or nothing is.
func (s *Store) CreateExchange(parentID NodeID) (NodeID, NodeID, error) {
	s.mu.Lock()
	if _, ok := s.nodes[parentID]; !ok {
		s.mu.Unlock()
		return NullNode, NullNode, notFound(parentID)
	}
	userID, err := s.createChildLocked(parentID, KindUser)
	if err != nil {
		s.mu.Unlock()
		return NullNode, NullNode, err
	}
	assistantID, err := s.createChildLocked(userID, KindAssistant)
	if err != nil {
		// unreachable while userID was just inserted, but never leave half a turn behind
		s.deleteLocked(userID)
		s.mu.Unlock()
		return NullNode, NullNode, err
	}
	s.mu.Unlock()

	log.Debug().
		Str("parent_id", parentID.String()).
		Str("user_id", userID.String()).
		Str("assistant_id", assistantID.String()).
		Msg("Created exchange")
	s.emit(
		StoreEvent{Type: EventNodeCreated, NodeIDs: []NodeID{userID, assistantID}},
		StoreEvent{Type: EventNodeUpdated, NodeIDs: []NodeID{parentID}},
	)
	return userID, assistantID, nil
}

func (s *Store) createChildLocked(parentID NodeID, kind NodeKind) (NodeID, error) {
	parent, ok := s.nodes[parentID]
	if !ok {
		return NullNode, notFound(parentID)
	}

	id := NewNodeID()
	s.insertNodeLocked(&Node{
		ID:       id,
		Type:     kind,
		Position: childPosition(parent),
		Data: NodeData{
			Config:      parent.Data.Config.Clone(),
			Attachments: []Attachment{},
			ParentID:    parentID,
			ChildrenIDs: []NodeID{},
		},
	})

	parent.Data.ChildrenIDs = append(parent.Data.ChildrenIDs, id)

	s.insertEdgeLocked(NewEdge(parentID, id))
	return id, nil
}

func (s *Store) insertNodeLocked(n *Node) {
	if _, exists := s.nodes[n.ID]; !exists {
		s.nodeOrder = append(s.nodeOrder, n.ID)
	}
	s.nodes[n.ID] = n
}

func (s *Store) insertEdgeLocked(e Edge) {
	if _, exists := s.edges[e.ID]; !exists {
		s.edgeOrder = append(s.edgeOrder, e.ID)
	}
	s.edges[e.ID] = e
}

// UpdateNode applies updater to a copy of the node's data and merges the
// returned patch. The updater must not retain the data it is given.
func (s *Store) UpdateNode(id NodeID, updater Updater) error {
	s.mu.Lock()
	node, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}

	// the updater works on its own copy, only the patch reaches the store
	patch := updater(node.Clone().Data)
	updated := node.Clone()
	patch.apply(&updated.Data)
	s.nodes[id] = updated
	s.mu.Unlock()

	s.emit(StoreEvent{Type: EventNodeUpdated, NodeIDs: []NodeID{id}})
	return nil
}

// MoveNode sets the layout position of a node.
func (s *Store) MoveNode(id NodeID, position Position) error {
	s.mu.Lock()
	node, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	updated := node.Clone()
	updated.Position = position
	s.nodes[id] = updated
	s.mu.Unlock()

	s.emit(StoreEvent{Type: EventNodeUpdated, NodeIDs: []NodeID{id}})
	return nil
}

// SetMeasured records the rendered size of a node, which the layout of
// future children uses.
func (s *Store) SetMeasured(id NodeID, dims Dimensions) error {
	s.mu.Lock()
	node, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	updated := node.Clone()
	updated.Measured = &dims
	s.nodes[id] = updated
	s.mu.Unlock()

	s.emit(StoreEvent{Type: EventNodeUpdated, NodeIDs: []NodeID{id}})
	return nil
}

// DeleteNode removes a node, all of its descendants and every edge touching
// them, and detaches the node from its parent.
func (s *Store) DeleteNode(id NodeID) error {
	s.mu.Lock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	parentID := s.nodes[id].Data.ParentID
	removed := s.deleteLocked(id)
	s.mu.Unlock()

	log.Debug().
		Str("node_id", id.String()).
		Int("removed", len(removed)).
		Msg("Deleted subtree")

	events := []StoreEvent{{Type: EventNodeDeleted, NodeIDs: removed}}
	if parentID != NullNode {
		events = append(events, StoreEvent{Type: EventNodeUpdated, NodeIDs: []NodeID{parentID}})
	}
	s.emit(events...)
	return nil
}

func (s *Store) deleteLocked(id NodeID) []NodeID {
	node := s.nodes[id]
	doomed := map[NodeID]struct{}{id: {}}
	removed := []NodeID{id}
	for _, d := range s.descendantsLocked(node) {
		doomed[d.ID] = struct{}{}
		removed = append(removed, d.ID)
	}

	if parent, ok := s.nodes[node.Data.ParentID]; ok {
		parent.Data.ChildrenIDs = filterIDs(parent.Data.ChildrenIDs, func(c NodeID) bool { return c != id })
	}

	for nid := range doomed {
		delete(s.nodes, nid)
	}
	s.nodeOrder = filterIDs(s.nodeOrder, func(n NodeID) bool {
		_, gone := doomed[n]
		return !gone
	})

	keptEdges := s.edgeOrder[:0:0]
	for _, eid := range s.edgeOrder {
		e := s.edges[eid]
		_, srcGone := doomed[e.Source]
		_, dstGone := doomed[e.Target]
		if srcGone || dstGone {
			delete(s.edges, eid)
			continue
		}
		keptEdges = append(keptEdges, eid)
	}
	s.edgeOrder = keptEdges

	return removed
}

// Get returns a copy of the node with the given id.
func (s *Store) Get(id NodeID) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	return node.Clone(), nil
}

// Nodes returns copies of all nodes in insertion order.
func (s *Store) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]*Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		ret = append(ret, s.nodes[id].Clone())
	}
	return ret
}

// Edges returns all edges in insertion order.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]Edge, 0, len(s.edgeOrder))
	for _, id := range s.edgeOrder {
		ret = append(ret, s.edges[id])
	}
	return ret
}

// Roots returns the nodes without parent, in insertion order.
func (s *Store) Roots() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ret []*Node
	for _, id := range s.nodeOrder {
		if n := s.nodes[id]; n.IsRoot() {
			ret = append(ret, n.Clone())
		}
	}
	return ret
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func filterIDs(ids []NodeID, keep func(NodeID) bool) []NodeID {
	ret := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		if keep(id) {
			ret = append(ret, id)
		}
	}
	return ret
}
