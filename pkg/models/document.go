package models

// NodeDocument is the persisted state of a node.
type NodeDocument struct {
	Params map[string]any `json:"params"`
	Files  []string       `json:"files,omitempty"`
	Cache  bool           `json:"cache,omitempty"`
	Time   float64        `json:"time,omitempty"`
	Memory int64          `json:"memory,omitempty"`
}

// DocumentFromNode captures the persistable fields of n.
func DocumentFromNode(n *Node) *NodeDocument {
	return &NodeDocument{
		Params: n.Data.Params.Values(),
		Files:  append([]string(nil), n.Data.Files...),
		Cache:  n.Data.Cache,
		Time:   n.Data.Time,
		Memory: n.Data.Memory,
	}
}
