package schema

// NodeType enumerates the 24 node kinds a workflow graph may contain.
type NodeType string

const (
	// Control flow.
	NodeVariable NodeType = "variable"
	NodeSet      NodeType = "set"
	NodeIf       NodeType = "if"
	NodeWhile    NodeType = "while"
	NodeSleep    NodeType = "sleep"

	// AI generation.
	NodeCommand NodeType = "command"

	// Drive operations.
	NodeDriveFile       NodeType = "drive-file"
	NodeDriveRead       NodeType = "drive-read"
	NodeDriveSearch     NodeType = "drive-search"
	NodeDriveList       NodeType = "drive-list"
	NodeDriveFolderList NodeType = "drive-folder-list"
	NodeDriveFilePicker NodeType = "drive-file-picker"
	NodeDriveSave       NodeType = "drive-save"
	NodeDriveDelete     NodeType = "drive-delete"

	// Interactive prompts.
	NodePromptValue     NodeType = "prompt-value"
	NodePromptFile      NodeType = "prompt-file"
	NodePromptSelection NodeType = "prompt-selection"
	NodeDialog          NodeType = "dialog"

	// Integrations.
	NodeWorkflow       NodeType = "workflow"
	NodeJSON           NodeType = "json"
	NodeHTTP           NodeType = "http"
	NodeMCP            NodeType = "mcp"
	NodeRagSync        NodeType = "rag-sync"
	NodeGemihubCommand NodeType = "gemihub-command"
)

// AllNodeTypes lists every known node kind.
var AllNodeTypes = []NodeType{
	NodeVariable, NodeSet, NodeIf, NodeWhile, NodeSleep,
	NodeCommand,
	NodeDriveFile, NodeDriveRead, NodeDriveSearch, NodeDriveList,
	NodeDriveFolderList, NodeDriveFilePicker, NodeDriveSave, NodeDriveDelete,
	NodePromptValue, NodePromptFile, NodePromptSelection, NodeDialog,
	NodeWorkflow, NodeJSON, NodeHTTP, NodeMCP, NodeRagSync, NodeGemihubCommand,
}

// Known reports whether t is one of the 24 node kinds.
func (t NodeType) Known() bool {
	for _, k := range AllNodeTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Branching reports whether the node kind selects its successor via a
// "true"/"false" labeled edge.
func (t NodeType) Branching() bool {
	return t == NodeIf || t == NodeWhile
}

// Interactive reports whether the node kind suspends the execution pending
// an externally delivered value.
func (t NodeType) Interactive() bool {
	switch t {
	case NodePromptValue, NodePromptFile, NodePromptSelection, NodeDialog, NodeDriveFilePicker:
		return true
	}
	return false
}

// Edge labels for conditional branching.
const (
	EdgeTrue  = "true"
	EdgeFalse = "false"
)

// Edge is a directed connection between two nodes. Label is empty for plain
// edges, or "true"/"false" on outgoing edges of if/while nodes.
type Edge struct {
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Node is one typed step in a workflow graph. Props is the tagged union
// variant matching Type, decoded and validated at parse time.
type Node struct {
	ID    string    `json:"id"`
	Type  NodeType  `json:"type"`
	Props NodeProps `json:"properties"`
}

// Workflow is a validated, executable workflow graph. The graph need not be
// acyclic: while-loops create back-edges. Every Edge references existing
// node IDs.
type Workflow struct {
	ID    string           `json:"id,omitempty"`
	Name  string           `json:"name,omitempty"`
	Nodes map[string]*Node `json:"nodes"`
	Edges []Edge           `json:"edges"`
}

// Start returns the entry node: the unique node with no inbound plain or
// labeled edge. The parser guarantees exactly one exists.
func (w *Workflow) Start() *Node {
	inbound := make(map[string]bool, len(w.Nodes))
	for _, e := range w.Edges {
		inbound[e.To] = true
	}
	for id, n := range w.Nodes {
		if !inbound[id] {
			return n
		}
	}
	return nil
}

// Successor returns the target node ID of the outgoing edge from nodeID
// carrying the given label ("" for plain edges). The second return is false
// when no such edge exists.
func (w *Workflow) Successor(nodeID, label string) (string, bool) {
	for _, e := range w.Edges {
		if e.From == nodeID && e.Label == label {
			return e.To, true
		}
	}
	return "", false
}
