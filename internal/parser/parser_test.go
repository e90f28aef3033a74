package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/pkg/schema"
)

const linearDoc = `
id: wf-linear
name: Linear
nodes:
  n1:
    type: variable
    properties:
      name: x
      value: "1"
  n2:
    type: set
    properties:
      name: x
      expression: "x + 1"
  n3:
    type: dialog
    properties:
      message: "done, x={{x}}"
edges:
  - from: n1
    to: n2
  - from: n2
    to: n3
`

func TestParseLinearWorkflow(t *testing.T) {
	p := New()
	wf, err := p.Parse([]byte(linearDoc))
	require.NoError(t, err)

	assert.Equal(t, "wf-linear", wf.ID)
	assert.Equal(t, "Linear", wf.Name)
	assert.Len(t, wf.Nodes, 3)
	assert.Len(t, wf.Edges, 2)

	start := wf.Start()
	require.NotNil(t, start)
	assert.Equal(t, "n1", start.ID)

	next, ok := wf.Successor("n1", "")
	require.True(t, ok)
	assert.Equal(t, "n2", next)

	vp, ok := wf.Nodes["n1"].Props.(*schema.VariableProps)
	require.True(t, ok)
	assert.Equal(t, "x", vp.Name)
	assert.Equal(t, "1", vp.Value)
}

func TestParseBranchingWorkflow(t *testing.T) {
	doc := `
nodes:
  check:
    type: if
    properties:
      condition: "{{x}} > 0"
  yes:
    type: dialog
    properties:
      message: positive
  no:
    type: dialog
    properties:
      message: non-positive
edges:
  - from: check
    to: yes
    label: "true"
  - from: check
    to: no
    label: "false"
`
	wf, err := New().Parse([]byte(doc))
	require.NoError(t, err)

	next, ok := wf.Successor("check", schema.EdgeTrue)
	require.True(t, ok)
	assert.Equal(t, "yes", next)

	next, ok = wf.Successor("check", schema.EdgeFalse)
	require.True(t, ok)
	assert.Equal(t, "no", next)

	_, ok = wf.Successor("yes", "")
	assert.False(t, ok)
}

func TestParseGeneratedID(t *testing.T) {
	doc := `
nodes:
  only:
    type: dialog
    properties:
      message: hi
`
	wf, err := New().Parse([]byte(doc))
	require.NoError(t, err)
	assert.NotEmpty(t, wf.ID)
	assert.Equal(t, wf.ID, wf.Name)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantCode string
	}{
		{
			name:     "invalid yaml",
			doc:      "nodes: [",
			wantCode: schema.ErrCodeParse,
		},
		{
			name: "unknown node type",
			doc: `
nodes:
  a:
    type: teleport
`,
			wantCode: schema.ErrCodeUnknownNode,
		},
		{
			name: "missing required property",
			doc: `
nodes:
  a:
    type: variable
    properties:
      value: "1"
`,
			wantCode: schema.ErrCodeValidation,
		},
		{
			name: "edge to unknown node",
			doc: `
nodes:
  a:
    type: dialog
    properties:
      message: hi
edges:
  - from: a
    to: ghost
`,
			wantCode: schema.ErrCodeValidation,
		},
		{
			name: "label on non-branch node",
			doc: `
nodes:
  a:
    type: dialog
    properties:
      message: hi
  b:
    type: dialog
    properties:
      message: bye
edges:
  - from: a
    to: b
    label: "true"
`,
			wantCode: schema.ErrCodeValidation,
		},
		{
			name: "duplicate plain successor",
			doc: `
nodes:
  a:
    type: dialog
    properties:
      message: hi
  b:
    type: dialog
    properties:
      message: bye
edges:
  - from: a
    to: b
  - from: a
    to: b
`,
			wantCode: schema.ErrCodeValidation,
		},
		{
			name: "duplicate labeled edge",
			doc: `
nodes:
  a:
    type: if
    properties:
      condition: "true"
  b:
    type: dialog
    properties:
      message: hi
edges:
  - from: a
    to: b
    label: "true"
  - from: a
    to: b
    label: "true"
`,
			wantCode: schema.ErrCodeValidation,
		},
		{
			name: "no start node",
			doc: `
nodes:
  a:
    type: dialog
    properties:
      message: hi
  b:
    type: dialog
    properties:
      message: bye
edges:
  - from: a
    to: b
  - from: b
    to: a
`,
			wantCode: schema.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Parse([]byte(tt.doc))
			require.Error(t, err)
			var fe *schema.FlowError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantCode, fe.Code)
		})
	}
}

func TestParsePropertyErrorKeepsNodeAndCode(t *testing.T) {
	doc := `
nodes:
  pick:
    type: prompt-selection
    properties:
      title: Choose
`
	_, err := New().Parse([]byte(doc))
	require.Error(t, err)

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
	assert.Equal(t, "pick", fe.NodeID)
}

func TestParseWhileMaxIterations(t *testing.T) {
	doc := `
nodes:
  init:
    type: variable
    properties:
      name: i
      value: "0"
  loop:
    type: while
    properties:
      condition: "{{i}} < 3"
      maxIterations: "25"
  body:
    type: set
    properties:
      name: i
      expression: "i + 1"
edges:
  - from: init
    to: loop
  - from: loop
    to: body
    label: "true"
  - from: body
    to: loop
`
	wf, err := New().Parse([]byte(doc))
	require.NoError(t, err)

	wp, ok := wf.Nodes["loop"].Props.(*schema.WhileProps)
	require.True(t, ok)
	assert.Equal(t, 25, wp.MaxIterations)
}
