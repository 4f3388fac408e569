package conversation

const (
	// HorizontalPadding shifts each additional sibling to the right.
	HorizontalPadding = 20
	// VerticalPadding separates a child from the bottom of its parent.
	VerticalPadding = 40
	// DefaultNodeHeight is used for parents a renderer has not measured yet.
	DefaultNodeHeight = 100
)

// childPosition places the next child of parent below it, staggered by the
// number of children the parent already has.
func childPosition(parent *Node) Position {
	height := float64(DefaultNodeHeight)
	if parent.Measured != nil && parent.Measured.Height > 0 {
		height = parent.Measured.Height
	}
	siblings := len(parent.Data.ChildrenIDs)
	return Position{
		X: parent.Position.X + float64(siblings*HorizontalPadding),
		Y: parent.Position.Y + height + VerticalPadding,
	}
}
