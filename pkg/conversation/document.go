package conversation

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Document is the exchange format shared by the workspace file, the remote
// sync payload and renderers.
type Document struct {
	Nodes []*Node `json:"nodes" jsonschema:"required"`
	Edges []Edge  `json:"edges"`
}

func (s *Store) snapshotLocked() *Document {
	ret := &Document{
		Nodes: make([]*Node, 0, len(s.nodeOrder)),
		Edges: make([]Edge, 0, len(s.edgeOrder)),
	}
	for _, id := range s.nodeOrder {
		ret.Nodes = append(ret.Nodes, s.nodes[id].Clone())
	}
	for _, id := range s.edgeOrder {
		ret.Edges = append(ret.Edges, s.edges[id])
	}
	return ret
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// ExportJSON serializes all nodes and edges in insertion order.
func (s *Store) ExportJSON() ([]byte, error) {
	doc := s.Snapshot()
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal document")
	}
	return b, nil
}

func parseDocument(data []byte) (*Document, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrap(ErrInvalidDocument, err.Error())
	}
	return doc, nil
}

// ImportJSON merges an imported document into the store. Imported values
// seed the result and local values overwrite them key by key, so local
// always wins for ids present on both sides. Entries keep first-seen order:
// imported entries first, then local-only entries.
//
// Local nodes adopt remote-only children whose parentId points at them, and
// missing edges for such links are added. The merged document replaces the
// store state and is returned serialized, ready to be written back.
func (s *Store) ImportJSON(data []byte) ([]byte, error) {
	merged, b, err := s.MergeJSON(data)
	if err != nil {
		return nil, err
	}
	s.Merge(merged)
	return b, nil
}

// MergeJSON computes what ImportJSON would load, without changing the store.
// The merged document is returned together with its serialization.
func (s *Store) MergeJSON(data []byte) (*Document, []byte, error) {
	imported, err := parseDocument(data)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	local := s.snapshotLocked()
	s.mu.RUnlock()
	merged := mergeDocuments(imported, local)

	log.Debug().
		Int("imported_nodes", len(imported.Nodes)).
		Int("local_nodes", len(local.Nodes)).
		Int("merged_nodes", len(merged.Nodes)).
		Msg("Merged imported document")

	b, err := json.Marshal(merged)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not marshal merged document")
	}
	return merged, b, nil
}

// Merge overlays the current store state onto doc and loads the result, so
// local changes made since doc was computed still win.
func (s *Store) Merge(doc *Document) {
	s.mu.Lock()
	s.loadLocked(mergeDocuments(doc, s.snapshotLocked()))
	s.mu.Unlock()

	s.emit(StoreEvent{Type: EventTreeImported})
}

func mergeDocuments(base, overlay *Document) *Document {
	nodes := map[NodeID]*Node{}
	var nodeOrder []NodeID
	for _, set := range [][]*Node{base.Nodes, overlay.Nodes} {
		for _, n := range set {
			if n == nil {
				continue
			}
			if _, ok := nodes[n.ID]; !ok {
				nodeOrder = append(nodeOrder, n.ID)
			}
			nodes[n.ID] = n.Clone()
		}
	}

	edges := map[string]Edge{}
	var edgeOrder []string
	for _, set := range [][]Edge{base.Edges, overlay.Edges} {
		for _, e := range set {
			if _, ok := edges[e.ID]; !ok {
				edgeOrder = append(edgeOrder, e.ID)
			}
			edges[e.ID] = e
		}
	}

	// adopt children that only the other side knew about
	for _, id := range nodeOrder {
		n := nodes[id]
		if n.IsRoot() {
			continue
		}
		parent, ok := nodes[n.Data.ParentID]
		if !ok {
			continue
		}
		if !containsID(parent.Data.ChildrenIDs, id) {
			parent.Data.ChildrenIDs = append(parent.Data.ChildrenIDs, id)
		}
		eid := EdgeID(parent.ID, id)
		if _, ok := edges[eid]; !ok {
			edges[eid] = NewEdge(parent.ID, id)
			edgeOrder = append(edgeOrder, eid)
		}
	}

	ret := &Document{
		Nodes: make([]*Node, 0, len(nodeOrder)),
		Edges: make([]Edge, 0, len(edgeOrder)),
	}
	for _, id := range nodeOrder {
		ret.Nodes = append(ret.Nodes, nodes[id])
	}
	for _, id := range edgeOrder {
		ret.Edges = append(ret.Edges, edges[id])
	}
	return ret
}

// Load replaces the store contents with doc.
func (s *Store) Load(doc *Document) {
	s.mu.Lock()
	s.loadLocked(doc)
	s.mu.Unlock()

	s.emit(StoreEvent{Type: EventTreeImported})
}

func (s *Store) loadLocked(doc *Document) {
	s.nodes = map[NodeID]*Node{}
	s.nodeOrder = nil
	s.edges = map[string]Edge{}
	s.edgeOrder = nil
	for _, n := range doc.Nodes {
		if n == nil {
			continue
		}
		s.insertNodeLocked(n.Clone())
	}
	for _, e := range doc.Edges {
		s.insertEdgeLocked(e)
	}
}

// LoadJSON validates data and replaces the store contents with it.
func (s *Store) LoadJSON(data []byte) error {
	doc, err := parseDocument(data)
	if err != nil {
		return err
	}
	s.Load(doc)
	return nil
}

// SaveToFile writes the exported document to path. The file is written to a
// temporary sibling first and renamed into place.
func (s *Store) SaveToFile(path string) error {
	b, err := s.ExportJSON()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "could not create temporary file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "could not write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "could not close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "could not move workspace into %s", path)
	}
	return nil
}

// LoadFromFile replaces the store contents with the document at path. A
// missing file leaves the store empty.
func (s *Store) LoadFromFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.Load(&Document{})
			return nil
		}
		return errors.Wrapf(err, "could not read %s", path)
	}
	if err := s.LoadJSON(b); err != nil {
		return errors.Wrapf(err, "could not load %s", path)
	}
	return nil
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
