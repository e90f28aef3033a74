package schema

import "time"

// Event kinds streamed to the live observer of an execution.
const (
	EventLog           = "log"
	EventStatus        = "status"
	EventPromptRequest = "prompt-request"
	EventComplete      = "complete"
	EventCancelled     = "cancelled"
	EventError         = "error"

	// Out-of-band Drive change notifications, consumed by the external
	// cache-reconciliation collaborator alongside the normal stream.
	EventDriveFileUpdated = "drive-file-updated"
	EventDriveFileCreated = "drive-file-created"
)

// ExecutionStatus represents the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusIdle          ExecutionStatus = "idle"
	ExecutionStatusRunning       ExecutionStatus = "running"
	ExecutionStatusWaitingPrompt ExecutionStatus = "waiting-prompt"
	ExecutionStatusCompleted     ExecutionStatus = "completed"
	ExecutionStatusCancelled     ExecutionStatus = "cancelled"
	ExecutionStatusError         ExecutionStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusCancelled, ExecutionStatusError:
		return true
	}
	return false
}

// StepStatus classifies the outcome of a single node visit.
type StepStatus string

const (
	StepStatusInfo    StepStatus = "info"
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
)

// Step records one node visit during an execution. A looped node produces
// one Step per iteration. It is the unit of both live log events and
// persisted history.
type Step struct {
	NodeID    string     `json:"node_id"`
	NodeType  NodeType   `json:"node_type"`
	Input     any        `json:"input,omitempty"`
	Output    any        `json:"output,omitempty"`
	Error     string     `json:"error,omitempty"`
	Status    StepStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
}

// Event is one entry in an execution's live stream. Exactly one of the
// payload fields is set depending on Type.
type Event struct {
	ExecutionID string          `json:"execution_id"`
	Type        string          `json:"type"`
	Step        *Step           `json:"step,omitempty"`
	Status      ExecutionStatus `json:"status,omitempty"`
	Prompt      *PromptRequest  `json:"prompt,omitempty"`
	Message     string          `json:"message,omitempty"`
	File        *DriveChange    `json:"file,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// PromptRequest describes the input requested by an interactive node.
type PromptRequest struct {
	NodeID    string   `json:"node_id"`
	NodeType  NodeType `json:"node_type"`
	Title     string   `json:"title,omitempty"`
	Message   string   `json:"message,omitempty"`
	Default   string   `json:"default,omitempty"`
	Multiline bool     `json:"multiline,omitempty"`
	Options   []string `json:"options,omitempty"`
	Buttons   []string `json:"buttons,omitempty"`
	Accept    string   `json:"accept,omitempty"`
}

// DriveChange is the payload of a drive-file-updated/created notification.
type DriveChange struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Content  string `json:"content,omitempty"`
}
