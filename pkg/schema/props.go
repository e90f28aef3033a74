package schema

import (
	"strconv"
	"strings"
)

// NodeProps is the tagged union of per-kind property structs. Each variant
// is decoded from the document's untyped key/value properties once at parse
// time; string fields keep their {{...}} tokens, which handlers resolve
// against the variable scope at dispatch time.
type NodeProps interface {
	Kind() NodeType
	Validate() error
}

// --- Control flow ---

// VariableProps declares a variable with an initial value.
type VariableProps struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (p *VariableProps) Kind() NodeType { return NodeVariable }
func (p *VariableProps) Validate() error {
	return requireProps(NodeVariable, field{"name", p.Name})
}

// SetProps assigns the result of an arithmetic expression to one variable.
type SetProps struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

func (p *SetProps) Kind() NodeType { return NodeSet }
func (p *SetProps) Validate() error {
	return requireProps(NodeSet, field{"name", p.Name}, field{"expression", p.Expression})
}

// IfProps holds the branch condition string.
type IfProps struct {
	Condition string `json:"condition"`
}

func (p *IfProps) Kind() NodeType { return NodeIf }
func (p *IfProps) Validate() error {
	return requireProps(NodeIf, field{"condition", p.Condition})
}

// WhileProps holds the loop condition. MaxIterations caps condition visits;
// zero means the engine default.
type WhileProps struct {
	Condition     string `json:"condition"`
	MaxIterations int    `json:"maxIterations,omitempty"`
}

func (p *WhileProps) Kind() NodeType { return NodeWhile }
func (p *WhileProps) Validate() error {
	return requireProps(NodeWhile, field{"condition", p.Condition})
}

// SleepProps pauses the execution. Duration accepts Go syntax ("1.5s") or a
// bare number of seconds.
type SleepProps struct {
	Duration string `json:"duration"`
}

func (p *SleepProps) Kind() NodeType { return NodeSleep }
func (p *SleepProps) Validate() error {
	return requireProps(NodeSleep, field{"duration", p.Duration})
}

// --- AI ---

// CommandProps calls the generation service.
type CommandProps struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Attachments  []string `json:"attachments,omitempty"`
	Functions    bool     `json:"functions,omitempty"`
	SaveTo       string   `json:"saveTo,omitempty"`
}

func (p *CommandProps) Kind() NodeType { return NodeCommand }
func (p *CommandProps) Validate() error {
	return requireProps(NodeCommand, field{"prompt", p.Prompt})
}

// --- Drive operations ---

// DriveFileProps creates a file.
type DriveFileProps struct {
	Name     string `json:"name"`
	Content  string `json:"content,omitempty"`
	FolderID string `json:"folderId,omitempty"`
	SaveTo   string `json:"saveTo,omitempty"`
}

func (p *DriveFileProps) Kind() NodeType { return NodeDriveFile }
func (p *DriveFileProps) Validate() error {
	return requireProps(NodeDriveFile, field{"name", p.Name})
}

// DriveReadProps reads a file's content.
type DriveReadProps struct {
	FileID string `json:"fileId"`
	SaveTo string `json:"saveTo,omitempty"`
}

func (p *DriveReadProps) Kind() NodeType { return NodeDriveRead }
func (p *DriveReadProps) Validate() error {
	return requireProps(NodeDriveRead, field{"fileId", p.FileID})
}

// DriveSearchProps searches files by a full-text query.
type DriveSearchProps struct {
	Query  string `json:"query"`
	SaveTo string `json:"saveTo,omitempty"`
}

func (p *DriveSearchProps) Kind() NodeType { return NodeDriveSearch }
func (p *DriveSearchProps) Validate() error {
	return requireProps(NodeDriveSearch, field{"query", p.Query})
}

// DriveListProps lists files, optionally within one folder.
type DriveListProps struct {
	FolderID string `json:"folderId,omitempty"`
	SaveTo   string `json:"saveTo,omitempty"`
}

func (p *DriveListProps) Kind() NodeType  { return NodeDriveList }
func (p *DriveListProps) Validate() error { return nil }

// DriveFolderListProps lists folders.
type DriveFolderListProps struct {
	SaveTo string `json:"saveTo,omitempty"`
}

func (p *DriveFolderListProps) Kind() NodeType  { return NodeDriveFolderList }
func (p *DriveFolderListProps) Validate() error { return nil }

// DriveFilePickerProps asks the user to pick a file (interactive).
type DriveFilePickerProps struct {
	Title  string `json:"title,omitempty"`
	SaveTo string `json:"saveTo"`
}

func (p *DriveFilePickerProps) Kind() NodeType { return NodeDriveFilePicker }
func (p *DriveFilePickerProps) Validate() error {
	return requireProps(NodeDriveFilePicker, field{"saveTo", p.SaveTo})
}

// DriveSaveProps overwrites an existing file's content.
type DriveSaveProps struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
	SaveTo  string `json:"saveTo,omitempty"`
}

func (p *DriveSaveProps) Kind() NodeType { return NodeDriveSave }
func (p *DriveSaveProps) Validate() error {
	return requireProps(NodeDriveSave, field{"fileId", p.FileID})
}

// DriveDeleteProps deletes a file.
type DriveDeleteProps struct {
	FileID string `json:"fileId"`
}

func (p *DriveDeleteProps) Kind() NodeType { return NodeDriveDelete }
func (p *DriveDeleteProps) Validate() error {
	return requireProps(NodeDriveDelete, field{"fileId", p.FileID})
}

// --- Interactive prompts ---

// PromptValueProps asks the user for a free-form value.
type PromptValueProps struct {
	Title     string `json:"title,omitempty"`
	Default   string `json:"default,omitempty"`
	Multiline bool   `json:"multiline,omitempty"`
	SaveTo    string `json:"saveTo"`
}

func (p *PromptValueProps) Kind() NodeType { return NodePromptValue }
func (p *PromptValueProps) Validate() error {
	return requireProps(NodePromptValue, field{"saveTo", p.SaveTo})
}

// PromptFileProps asks the user to upload a file.
type PromptFileProps struct {
	Title  string `json:"title,omitempty"`
	Accept string `json:"accept,omitempty"`
	SaveTo string `json:"saveTo"`
}

func (p *PromptFileProps) Kind() NodeType { return NodePromptFile }
func (p *PromptFileProps) Validate() error {
	return requireProps(NodePromptFile, field{"saveTo", p.SaveTo})
}

// PromptSelectionProps asks the user to choose one of the options.
type PromptSelectionProps struct {
	Title   string   `json:"title,omitempty"`
	Options []string `json:"options"`
	SaveTo  string   `json:"saveTo"`
}

func (p *PromptSelectionProps) Kind() NodeType { return NodePromptSelection }
func (p *PromptSelectionProps) Validate() error {
	if len(p.Options) == 0 {
		return NewErrorf(ErrCodeValidation, "%s: missing required property 'options'", NodePromptSelection)
	}
	return requireProps(NodePromptSelection, field{"saveTo", p.SaveTo})
}

// DialogProps shows a message with button choices.
type DialogProps struct {
	Title   string   `json:"title,omitempty"`
	Message string   `json:"message"`
	Buttons []string `json:"buttons,omitempty"`
	SaveTo  string   `json:"saveTo,omitempty"`
}

func (p *DialogProps) Kind() NodeType { return NodeDialog }
func (p *DialogProps) Validate() error {
	return requireProps(NodeDialog, field{"message", p.Message})
}

// --- Integrations ---

// WorkflowProps runs another workflow as a nested execution. Variable scope
// is not shared: only Input/Output mappings cross the boundary. Input maps
// child variable name -> parent expression; Output maps parent variable
// name -> child variable name.
type WorkflowProps struct {
	WorkflowID string            `json:"workflowId"`
	Input      map[string]string `json:"input,omitempty"`
	Output     map[string]string `json:"output,omitempty"`
}

func (p *WorkflowProps) Kind() NodeType { return NodeWorkflow }
func (p *WorkflowProps) Validate() error {
	return requireProps(NodeWorkflow, field{"workflowId", p.WorkflowID})
}

// JSONProps applies a jq query to a variable's value.
type JSONProps struct {
	Input  string `json:"input"`
	Query  string `json:"query"`
	SaveTo string `json:"saveTo"`
}

func (p *JSONProps) Kind() NodeType { return NodeJSON }
func (p *JSONProps) Validate() error {
	return requireProps(NodeJSON, field{"input", p.Input}, field{"query", p.Query}, field{"saveTo", p.SaveTo})
}

// HTTPProps performs an HTTP request. When ThrowOnError is false a non-2xx
// response is captured into SaveTo/SaveStatus instead of failing the step.
type HTTPProps struct {
	URL          string            `json:"url"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	ThrowOnError bool              `json:"throwOnError"`
	SaveTo       string            `json:"saveTo,omitempty"`
	SaveStatus   string            `json:"saveStatus,omitempty"`
}

func (p *HTTPProps) Kind() NodeType { return NodeHTTP }
func (p *HTTPProps) Validate() error {
	return requireProps(NodeHTTP, field{"url", p.URL})
}

// MCPProps calls a tool on a configured MCP server.
type MCPProps struct {
	Server    string `json:"server"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments,omitempty"`
	SaveTo    string `json:"saveTo,omitempty"`
}

func (p *MCPProps) Kind() NodeType { return NodeMCP }
func (p *MCPProps) Validate() error {
	return requireProps(NodeMCP, field{"server", p.Server}, field{"tool", p.Tool})
}

// RagSyncProps triggers RAG store reconciliation for a folder scope.
type RagSyncProps struct {
	FolderID string `json:"folderId,omitempty"`
	SaveTo   string `json:"saveTo,omitempty"`
}

func (p *RagSyncProps) Kind() NodeType  { return NodeRagSync }
func (p *RagSyncProps) Validate() error { return nil }

// GemihubCommandProps dispatches a named workspace command.
type GemihubCommandProps struct {
	Command string `json:"command"`
	Args    string `json:"args,omitempty"`
	SaveTo  string `json:"saveTo,omitempty"`
}

func (p *GemihubCommandProps) Kind() NodeType { return NodeGemihubCommand }
func (p *GemihubCommandProps) Validate() error {
	return requireProps(NodeGemihubCommand, field{"command", p.Command})
}

// --- Decoding ---

// DecodeProps builds the typed property variant for a node kind from the
// document's raw key/value properties and validates required fields.
func DecodeProps(t NodeType, raw map[string]string) (NodeProps, error) {
	get := func(key string) string { return raw[key] }

	var props NodeProps
	switch t {
	case NodeVariable:
		props = &VariableProps{Name: get("name"), Value: get("value")}
	case NodeSet:
		props = &SetProps{Name: get("name"), Expression: get("expression")}
	case NodeIf:
		props = &IfProps{Condition: get("condition")}
	case NodeWhile:
		props = &WhileProps{Condition: get("condition"), MaxIterations: intProp(raw, "maxIterations")}
	case NodeSleep:
		props = &SleepProps{Duration: get("duration")}
	case NodeCommand:
		props = &CommandProps{
			Prompt:       get("prompt"),
			SystemPrompt: get("systemPrompt"),
			Attachments:  listProp(raw, "attachments"),
			Functions:    boolProp(raw, "functions", false),
			SaveTo:       get("saveTo"),
		}
	case NodeDriveFile:
		props = &DriveFileProps{Name: get("name"), Content: get("content"), FolderID: get("folderId"), SaveTo: get("saveTo")}
	case NodeDriveRead:
		props = &DriveReadProps{FileID: get("fileId"), SaveTo: get("saveTo")}
	case NodeDriveSearch:
		props = &DriveSearchProps{Query: get("query"), SaveTo: get("saveTo")}
	case NodeDriveList:
		props = &DriveListProps{FolderID: get("folderId"), SaveTo: get("saveTo")}
	case NodeDriveFolderList:
		props = &DriveFolderListProps{SaveTo: get("saveTo")}
	case NodeDriveFilePicker:
		props = &DriveFilePickerProps{Title: get("title"), SaveTo: get("saveTo")}
	case NodeDriveSave:
		props = &DriveSaveProps{FileID: get("fileId"), Content: get("content"), SaveTo: get("saveTo")}
	case NodeDriveDelete:
		props = &DriveDeleteProps{FileID: get("fileId")}
	case NodePromptValue:
		props = &PromptValueProps{
			Title:     get("title"),
			Default:   get("default"),
			Multiline: boolProp(raw, "multiline", false),
			SaveTo:    get("saveTo"),
		}
	case NodePromptFile:
		props = &PromptFileProps{Title: get("title"), Accept: get("accept"), SaveTo: get("saveTo")}
	case NodePromptSelection:
		props = &PromptSelectionProps{Title: get("title"), Options: listProp(raw, "options"), SaveTo: get("saveTo")}
	case NodeDialog:
		props = &DialogProps{Title: get("title"), Message: get("message"), Buttons: listProp(raw, "buttons"), SaveTo: get("saveTo")}
	case NodeWorkflow:
		props = &WorkflowProps{
			WorkflowID: get("workflowId"),
			Input:      mappingProp(raw, "input"),
			Output:     mappingProp(raw, "output"),
		}
	case NodeJSON:
		props = &JSONProps{Input: get("input"), Query: get("query"), SaveTo: get("saveTo")}
	case NodeHTTP:
		props = &HTTPProps{
			URL:          get("url"),
			Method:       get("method"),
			Headers:      mappingProp(raw, "headers"),
			Body:         get("body"),
			ThrowOnError: boolProp(raw, "throwOnError", true),
			SaveTo:       get("saveTo"),
			SaveStatus:   get("saveStatus"),
		}
	case NodeMCP:
		props = &MCPProps{Server: get("server"), Tool: get("tool"), Arguments: get("arguments"), SaveTo: get("saveTo")}
	case NodeRagSync:
		props = &RagSyncProps{FolderID: get("folderId"), SaveTo: get("saveTo")}
	case NodeGemihubCommand:
		props = &GemihubCommandProps{Command: get("command"), Args: get("args"), SaveTo: get("saveTo")}
	default:
		return nil, NewErrorf(ErrCodeUnknownNode, "unknown node type %q", t)
	}

	if err := props.Validate(); err != nil {
		return nil, err
	}
	return props, nil
}

// --- Property decoding helpers ---

type field struct {
	name  string
	value string
}

func requireProps(t NodeType, fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return NewErrorf(ErrCodeValidation, "%s: missing required property %q", t, f.name)
		}
	}
	return nil
}

func boolProp(raw map[string]string, key string, defaultVal bool) bool {
	v, ok := raw[key]
	if !ok || v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func intProp(raw map[string]string, key string) int {
	n, err := strconv.Atoi(raw[key])
	if err != nil {
		return 0
	}
	return n
}

// listProp splits a comma-separated property into trimmed entries.
func listProp(raw map[string]string, key string) []string {
	v, ok := raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// mappingProp parses "key=value, key2=value2" pairs.
func mappingProp(raw map[string]string, key string) map[string]string {
	v, ok := raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		k, val, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		k = strings.TrimSpace(k)
		val = strings.TrimSpace(val)
		if k != "" {
			out[k] = val
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
