package conversation

import "github.com/pkg/errors"

// GetAncestors returns the chain of ancestors of id ordered root first,
// excluding the node itself. A root yields an empty slice.
func (s *Store) GetAncestors(id NodeID) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, notFound(id)
	}

	ret := []*Node{}
	current := node
	for steps := 0; current.Data.ParentID != NullNode; steps++ {
		if steps >= len(s.nodes) {
			return nil, errors.Wrapf(ErrCorruptTree, "parent chain of %s does not terminate", id)
		}
		parent, ok := s.nodes[current.Data.ParentID]
		if !ok {
			return nil, errors.Wrapf(ErrCorruptTree, "node %s points to missing parent %s", current.ID, current.Data.ParentID)
		}
		ret = append(ret, parent.Clone())
		current = parent
	}

	for i, j := 0, len(ret)-1; i < j; i, j = i+1, j-1 {
		ret[i], ret[j] = ret[j], ret[i]
	}
	return ret, nil
}

// GetThread returns the ancestors of id followed by the node itself.
func (s *Store) GetThread(id NodeID) ([]*Node, error) {
	ancestors, err := s.GetAncestors(id)
	if err != nil {
		return nil, err
	}
	node, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return append(ancestors, node), nil
}

// GetDescendants returns all nodes below id in breadth-first order,
// excluding the node itself.
func (s *Store) GetDescendants(id NodeID) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	descendants := s.descendantsLocked(node)
	ret := make([]*Node, 0, len(descendants))
	for _, d := range descendants {
		ret = append(ret, d.Clone())
	}
	return ret, nil
}

// GetLeaves returns the nodes without children below id, in breadth-first
// order. A node without children is its own leaf.
func (s *Store) GetLeaves(id NodeID) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	if len(node.Data.ChildrenIDs) == 0 {
		return []*Node{node.Clone()}, nil
	}
	var ret []*Node
	for _, d := range s.descendantsLocked(node) {
		if len(d.Data.ChildrenIDs) == 0 {
			ret = append(ret, d.Clone())
		}
	}
	return ret, nil
}

// descendantsLocked walks childrenIds breadth first. Children ids that do
// not resolve are skipped and every node is visited at most once.
func (s *Store) descendantsLocked(node *Node) []*Node {
	var ret []*Node
	seen := map[NodeID]struct{}{node.ID: {}}
	queue := append([]NodeID{}, node.Data.ChildrenIDs...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		child, ok := s.nodes[id]
		if !ok {
			continue
		}
		ret = append(ret, child)
		queue = append(queue, child.Data.ChildrenIDs...)
	}
	return ret
}
