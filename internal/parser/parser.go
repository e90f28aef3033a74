// Package parser decodes YAML workflow documents into validated workflow
// graphs. Validation happens in three passes: structural (JSON Schema),
// per-node property decoding, and graph-level semantic checks.
package parser

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/gemihub/gemiflow/pkg/schema"
)

// document is the raw YAML shape of a workflow definition.
type document struct {
	ID    string                  `yaml:"id"`
	Name  string                  `yaml:"name"`
	Nodes map[string]documentNode `yaml:"nodes"`
	Edges []documentEdge          `yaml:"edges"`
}

type documentNode struct {
	Type       string            `yaml:"type"`
	Properties map[string]string `yaml:"properties"`
}

type documentEdge struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Label string `yaml:"label"`
}

// Parser turns YAML workflow documents into schema.Workflow values.
type Parser struct {
	mu        sync.Mutex
	validator *documentValidator
}

func New() *Parser {
	return &Parser{}
}

// Parse decodes, validates and assembles a workflow from YAML source.
func (p *Parser) Parse(data []byte) (*schema.Workflow, error) {
	if err := p.validateStructure(data); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "decode workflow document: %s", err.Error()).WithCause(err)
	}

	wf := &schema.Workflow{
		ID:    doc.ID,
		Name:  doc.Name,
		Nodes: make(map[string]*schema.Node, len(doc.Nodes)),
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Name == "" {
		wf.Name = wf.ID
	}

	for id, dn := range doc.Nodes {
		nodeType := schema.NodeType(dn.Type)
		if !nodeType.Known() {
			return nil, schema.NewErrorf(schema.ErrCodeUnknownNode, "unknown node type %q", dn.Type).WithNode(id)
		}
		props, err := schema.DecodeProps(nodeType, dn.Properties)
		if err != nil {
			var fe *schema.FlowError
			if errors.As(err, &fe) {
				return nil, fe.WithNode(id)
			}
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "node properties: %s", err.Error()).WithNode(id)
		}
		wf.Nodes[id] = &schema.Node{ID: id, Type: nodeType, Props: props}
	}

	for _, de := range doc.Edges {
		wf.Edges = append(wf.Edges, schema.Edge{From: de.From, To: de.To, Label: de.Label})
	}

	if err := validateGraph(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// validateStructure runs the JSON Schema pass over the decoded document.
func (p *Parser) validateStructure(data []byte) error {
	p.mu.Lock()
	if p.validator == nil {
		v, err := newDocumentValidator()
		if err != nil {
			p.mu.Unlock()
			return schema.NewErrorf(schema.ErrCodeParse, "build document validator: %s", err.Error()).WithCause(err)
		}
		p.validator = v
	}
	v := p.validator
	p.mu.Unlock()

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return schema.NewErrorf(schema.ErrCodeParse, "decode workflow document: %s", err.Error()).WithCause(err)
	}
	return v.validate(normalizeYAML(raw))
}

// validateGraph enforces the graph-level invariants: edges reference real
// nodes, branch nodes carry at most one edge per label, non-branch nodes
// have at most one successor, and exactly one node has no inbound edge.
func validateGraph(wf *schema.Workflow) error {
	type edgeKey struct {
		from  string
		label string
	}
	seen := make(map[edgeKey]bool, len(wf.Edges))

	for _, e := range wf.Edges {
		from, ok := wf.Nodes[e.From]
		if !ok {
			return schema.NewErrorf(schema.ErrCodeValidation, "edge references unknown node %q", e.From)
		}
		if _, ok := wf.Nodes[e.To]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation, "edge references unknown node %q", e.To)
		}

		if from.Type.Branching() {
			if e.Label != schema.EdgeTrue && e.Label != schema.EdgeFalse {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"edge from %s node %q must be labeled %q or %q", from.Type, e.From, schema.EdgeTrue, schema.EdgeFalse).WithNode(e.From)
			}
		} else if e.Label != "" {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"edge from %s node %q must not carry a label", from.Type, e.From).WithNode(e.From)
		}

		key := edgeKey{from: e.From, label: e.Label}
		if seen[key] {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"node %q has duplicate outgoing edge with label %q", e.From, e.Label).WithNode(e.From)
		}
		seen[key] = true
	}

	inbound := make(map[string]bool, len(wf.Nodes))
	for _, e := range wf.Edges {
		inbound[e.To] = true
	}
	var starts []string
	for id := range wf.Nodes {
		if !inbound[id] {
			starts = append(starts, id)
		}
	}
	switch len(starts) {
	case 1:
		return nil
	case 0:
		return schema.NewError(schema.ErrCodeValidation, "workflow has no start node, every node has an inbound edge")
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "workflow has %d start nodes, expected exactly one", len(starts))
	}
}

// MustParse is a test helper that panics on parse failure.
func MustParse(data []byte) *schema.Workflow {
	p := New()
	wf, err := p.Parse(data)
	if err != nil {
		panic(fmt.Sprintf("parse workflow: %v", err))
	}
	return wf
}
