package conversation

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// CorruptionReport lists every violation of the tree invariants found by
// Check. An empty report means the parent links, children lists and edges
// agree.
type CorruptionReport struct {
	// MissingParents are nodes whose parentId does not resolve.
	MissingParents []NodeID
	// DanglingChildren maps a node to children ids that do not resolve or
	// whose parentId points elsewhere.
	DanglingChildren map[NodeID][]NodeID
	// UnlistedChildren maps a parent to children that point at it but are
	// missing from its childrenIds.
	UnlistedChildren map[NodeID][]NodeID
	// DanglingEdges are edges that do not match a parent link.
	DanglingEdges []string
	// MissingEdges are parent links without an edge.
	MissingEdges []string
	// Cycles are nodes whose parent chain never reaches a root.
	Cycles []NodeID
}

func (r *CorruptionReport) OK() bool {
	return len(r.MissingParents) == 0 &&
		len(r.DanglingChildren) == 0 &&
		len(r.UnlistedChildren) == 0 &&
		len(r.DanglingEdges) == 0 &&
		len(r.MissingEdges) == 0 &&
		len(r.Cycles) == 0
}

func (r *CorruptionReport) String() string {
	if r.OK() {
		return "tree is consistent"
	}
	var parts []string
	if len(r.MissingParents) > 0 {
		parts = append(parts, fmt.Sprintf("%d nodes with missing parent", len(r.MissingParents)))
	}
	if len(r.DanglingChildren) > 0 {
		parts = append(parts, fmt.Sprintf("%d nodes with dangling children", len(r.DanglingChildren)))
	}
	if len(r.UnlistedChildren) > 0 {
		parts = append(parts, fmt.Sprintf("%d nodes with unlisted children", len(r.UnlistedChildren)))
	}
	if len(r.DanglingEdges) > 0 {
		parts = append(parts, fmt.Sprintf("%d dangling edges", len(r.DanglingEdges)))
	}
	if len(r.MissingEdges) > 0 {
		parts = append(parts, fmt.Sprintf("%d missing edges", len(r.MissingEdges)))
	}
	if len(r.Cycles) > 0 {
		parts = append(parts, fmt.Sprintf("%d nodes in parent cycles", len(r.Cycles)))
	}
	return strings.Join(parts, ", ")
}

// Check verifies the bidirectional parent/children invariant, the edge
// mirror and the absence of cycles.
func (s *Store) Check() *CorruptionReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkLocked()
}

func (s *Store) checkLocked() *CorruptionReport {
	ret := &CorruptionReport{
		DanglingChildren: map[NodeID][]NodeID{},
		UnlistedChildren: map[NodeID][]NodeID{},
	}

	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		for _, c := range n.Data.ChildrenIDs {
			child, ok := s.nodes[c]
			if !ok || child.Data.ParentID != id {
				ret.DanglingChildren[id] = append(ret.DanglingChildren[id], c)
			}
		}
		if n.IsRoot() {
			continue
		}
		parent, ok := s.nodes[n.Data.ParentID]
		if !ok {
			ret.MissingParents = append(ret.MissingParents, id)
			continue
		}
		if !containsID(parent.Data.ChildrenIDs, id) {
			ret.UnlistedChildren[parent.ID] = append(ret.UnlistedChildren[parent.ID], id)
		}
		if _, ok := s.edges[EdgeID(parent.ID, id)]; !ok {
			ret.MissingEdges = append(ret.MissingEdges, EdgeID(parent.ID, id))
		}
	}

	for _, eid := range s.edgeOrder {
		e := s.edges[eid]
		target, ok := s.nodes[e.Target]
		if !ok || target.Data.ParentID != e.Source || e.ID != EdgeID(e.Source, e.Target) {
			ret.DanglingEdges = append(ret.DanglingEdges, eid)
		}
	}

	// a node is cyclic when following its parents revisits a node
	for _, id := range s.nodeOrder {
		seen := map[NodeID]struct{}{}
		current := id
		for current != NullNode {
			if _, ok := seen[current]; ok {
				ret.Cycles = append(ret.Cycles, id)
				break
			}
			seen[current] = struct{}{}
			n, ok := s.nodes[current]
			if !ok {
				break
			}
			current = n.Data.ParentID
		}
	}

	if len(ret.DanglingChildren) == 0 {
		ret.DanglingChildren = nil
	}
	if len(ret.UnlistedChildren) == 0 {
		ret.UnlistedChildren = nil
	}
	return ret
}

// Repair drops dangling children ids and edges, adopts unlisted children,
// recreates missing edges and turns nodes with a missing parent or a parent
// cycle into roots. It returns the report of what was found before repairing.
func (s *Store) Repair() *CorruptionReport {
	s.mu.Lock()
	report := s.checkLocked()
	if report.OK() {
		s.mu.Unlock()
		return report
	}

	for _, id := range report.MissingParents {
		s.nodes[id].Data.ParentID = NullNode
	}
	for _, id := range report.Cycles {
		// detach one node per loop; nodes that merely lead into a loop keep
		// their parent
		if n := s.nodes[id]; !n.IsRoot() && s.onCycleLocked(id) {
			n.Data.ParentID = NullNode
		}
	}
	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		n.Data.ChildrenIDs = filterIDs(n.Data.ChildrenIDs, func(c NodeID) bool {
			child, ok := s.nodes[c]
			return ok && child.Data.ParentID == id
		})
	}
	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		if n.IsRoot() {
			continue
		}
		parent := s.nodes[n.Data.ParentID]
		if !containsID(parent.Data.ChildrenIDs, id) {
			parent.Data.ChildrenIDs = append(parent.Data.ChildrenIDs, id)
		}
	}

	kept := make([]string, 0, len(s.edgeOrder))
	for _, eid := range s.edgeOrder {
		e := s.edges[eid]
		target, ok := s.nodes[e.Target]
		if !ok || target.Data.ParentID != e.Source || e.ID != EdgeID(e.Source, e.Target) {
			delete(s.edges, eid)
			continue
		}
		kept = append(kept, eid)
	}
	s.edgeOrder = kept
	for _, id := range s.nodeOrder {
		n := s.nodes[id]
		if !n.IsRoot() {
			s.insertEdgeLocked(NewEdge(n.Data.ParentID, id))
		}
	}
	s.mu.Unlock()

	log.Warn().Str("report", report.String()).Msg("Repaired conversation tree")
	s.emit(StoreEvent{Type: EventTreeImported})
	return report
}

// onCycleLocked reports whether following the parents of id leads back to id.
func (s *Store) onCycleLocked(id NodeID) bool {
	current := s.nodes[id].Data.ParentID
	for steps := 0; current != NullNode && steps <= len(s.nodes); steps++ {
		if current == id {
			return true
		}
		n, ok := s.nodes[current]
		if !ok {
			return false
		}
		current = n.Data.ParentID
	}
	return false
}
