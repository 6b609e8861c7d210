// Package a2a implements the asynchronous request/response channel the
// purchase flow runs over: typed message envelopes, the task lifecycle
// state machine, and the client used to invoke counterparty agents.
package a2a

// TaskState is one lifecycle state of a task exchanged between two agents.
type TaskState string

const (
	// TaskStateSubmitted is the implicit state before the first response.
	TaskStateSubmitted TaskState = "submitted"
	// TaskStateWorking marks a task whose receiving agent is processing.
	TaskStateWorking TaskState = "working"
	// TaskStateInputRequired marks a resumable suspension: the caller must
	// supply the requested input and re-invoke with the same task id.
	TaskStateInputRequired TaskState = "input-required"
	// TaskStateCompleted is the terminal success state.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed is the terminal error state.
	TaskStateFailed TaskState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// Role identifies which side of the exchange authored a message.
type Role string

const (
	// RoleUser marks messages authored by the calling agent.
	RoleUser Role = "user"
	// RoleAgent marks messages authored by the receiving agent.
	RoleAgent Role = "agent"
)

// PartKind discriminates envelope part payloads.
type PartKind string

const (
	// PartKindText is a free text part.
	PartKindText PartKind = "text"
	// PartKindData is a typed data part tagged with a canonical key.
	PartKindData PartKind = "data"
)

// Part is one element of a message envelope: either free text or a data
// payload keyed by a canonical tag.
type Part struct {
	Kind PartKind       `json:"kind"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// TextPart builds a free text part.
func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// DataPart builds a data part tagging value with the canonical key.
func DataPart(key string, value any) Part {
	return Part{Kind: PartKindData, Data: map[string]any{key: value}}
}

// Message is the envelope exchanged between two agents: an ordered
// sequence of heterogeneous parts plus optional task/context routing ids.
type Message struct {
	MessageID string `json:"message_id"`
	Role      Role   `json:"role"`
	Parts     []Part `json:"parts"`
	TaskID    string `json:"task_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`
}

// Artifact is a typed output attached to a task.
type Artifact struct {
	ArtifactID string `json:"artifact_id"`
	Parts      []Part `json:"parts"`
}

// TaskStatus is the current lifecycle state of a task plus the agent
// message attached to the last transition.
type TaskStatus struct {
	State   TaskState `json:"state"`
	Message *Message  `json:"message,omitempty"`
}

// Task is one unit of work exchanged between two agents. Each party holds
// its own projection keyed by the shared task and context identifiers.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"context_id"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	History   []Message  `json:"history,omitempty"`
}

// CounterpartyTaskID recovers the task id a downstream agent allocated for
// work delegated from this task, by scanning history for the first message
// whose task id differs from the local task's own id. The heuristic
// assumes exactly one counterparty per task; multi-party fan-out needs an
// explicit role-to-task map instead.
func CounterpartyTaskID(task *Task) string {
	if task == nil {
		return ""
	}
	for _, msg := range task.History {
		if msg.TaskID != "" && msg.TaskID != task.ID {
			return msg.TaskID
		}
	}
	return ""
}

// AgentCard describes an agent endpoint: identity plus the protocol
// extensions it advertises. Served at a well-known path so callers can
// negotiate capabilities before sending business messages.
type AgentCard struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version"`
	Extensions  []string `json:"extensions,omitempty"`
}

// Supports reports whether the card advertises the extension URI.
func (c AgentCard) Supports(uri string) bool {
	for _, ext := range c.Extensions {
		if ext == uri {
			return true
		}
	}
	return false
}

// AgentCardPath is the well-known path serving the agent card.
const AgentCardPath = "/.well-known/agent-card.json"

// MessagesPath is the path accepting message envelopes.
const MessagesPath = "/a2a/messages"

// SendRequest is the HTTP body of a message send.
type SendRequest struct {
	Message Message `json:"message"`
}
