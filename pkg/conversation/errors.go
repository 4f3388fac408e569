package conversation

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned when a node id does not resolve to a node.
	ErrNotFound = errors.New("node not found")
	// ErrCorruptTree is returned when parent links form a cycle or point
	// outside the store. Only imported documents can produce this.
	ErrCorruptTree = errors.New("corrupt conversation tree")
	// ErrInvalidDocument is returned when an imported document does not
	// match the document schema.
	ErrInvalidDocument = errors.New("invalid conversation document")
)

func notFound(id NodeID) error {
	return errors.Wrapf(ErrNotFound, "node %s", id)
}
