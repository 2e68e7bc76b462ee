package graph

// ChangeKind names a committed graph mutation.
type ChangeKind string

const (
	ChangeNodeAdded    ChangeKind = "node.added"
	ChangeNodeRemoved  ChangeKind = "node.removed"
	ChangeNodeMoved    ChangeKind = "node.moved"
	ChangeNodeUpdated  ChangeKind = "node.updated"
	ChangeNodeExecuted ChangeKind = "node.executed"
	ChangeEdgeAdded    ChangeKind = "edge.added"
	ChangeEdgeRemoved  ChangeKind = "edge.removed"
	ChangeRestored     ChangeKind = "graph.restored"
)

// Change describes one committed mutation. Handlers run after the new
// state is visible and must not block.
type Change struct {
	Kind   ChangeKind
	NodeID string
	EdgeID string
	Param  string
}

type ChangeHandler func(Change)
