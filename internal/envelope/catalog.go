package envelope

// schemaNamespace is the stable top-level namespace every catalog schema key
// is rooted under.
const schemaNamespace = "fabric.bus."

// NotificationLevel is the severity of a UserNotification.
type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// ToolCallStatus is the lifecycle state of an in-flight tool call.
type ToolCallStatus string

const (
	ToolCallReceived   ToolCallStatus = "received"
	ToolCallInProgress ToolCallStatus = "in_progress"
	ToolCallDone       ToolCallStatus = "done"
)

// StatusKind is the canonical union tag for RequestStatusUpdate and its
// coordinator-promoted form StatusUpdate. The original message catalog
// carried WaitReason and Status as separate, partially-overlapping shapes;
// this is the one union both collapse into.
type StatusKind string

const (
	StatusProcessing StatusKind = "processing"
	StatusWait       StatusKind = "wait"
	StatusDone       StatusKind = "done"
)

// Status is the canonical status value embedded in RequestStatusUpdate and
// StatusUpdate. Only the fields relevant to Kind are populated.
type Status struct {
	Kind StatusKind `json:"kind"`

	// WaitReason is set when Kind is StatusWait.
	WaitReason string `json:"wait_reason,omitempty"`

	// DoneOK and DoneErr are set when Kind is StatusDone; exactly one is
	// populated.
	DoneOK  bool   `json:"done_ok,omitempty"`
	DoneErr string `json:"done_err,omitempty"`
}

// ActorReady is emitted exactly once per actor instance after construction.
type ActorReady struct{}

func (ActorReady) MessageType() string { return schemaNamespace + "ActorReady" }

// AllActorsReady is emitted once per scope by the coordinator once every
// expected actor in that scope has emitted ActorReady.
type AllActorsReady struct{}

func (AllActorsReady) MessageType() string { return schemaNamespace + "AllActorsReady" }

// Exit signals per-scope teardown, or global shutdown when emitted from the
// root scope.
type Exit struct{}

func (Exit) MessageType() string { return schemaNamespace + "Exit" }

// AgentSpawned announces that a scope has been spawned with the given
// closed actor set.
type AgentSpawned struct {
	AgentID     string   `json:"agent_id"`
	ParentAgent string   `json:"parent_agent,omitempty"`
	Actors      []string `json:"actors"`
	Name        string   `json:"name"`
}

func (AgentSpawned) MessageType() string { return schemaNamespace + "AgentSpawned" }

// AddMessage instructs an assistant actor to append a chat turn.
type AddMessage struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

func (AddMessage) MessageType() string { return schemaNamespace + "AddMessage" }

// ToolCall is the payload of a tool invocation request.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ExecuteTool asks a tool actor to run a tool call.
type ExecuteTool struct {
	ToolCall            ToolCall `json:"tool_call"`
	OriginatingRequestID string  `json:"originating_request_id"`
}

func (ExecuteTool) MessageType() string { return schemaNamespace + "ExecuteTool" }

// ToolCallStatusUpdate reports the lifecycle of one in-flight tool call.
type ToolCallStatusUpdate struct {
	ID                   string         `json:"id"`
	OriginatingRequestID string         `json:"originating_request_id"`
	Status               ToolCallStatus `json:"status"`

	// Result and Err are set only when Status is ToolCallDone; exactly
	// one is populated.
	Result string `json:"result,omitempty"`
	Err    string `json:"err,omitempty"`
}

func (ToolCallStatusUpdate) MessageType() string {
	return schemaNamespace + "ToolCallStatusUpdate"
}

// ToolDescriptor describes one tool an assistant actor can call.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolsAvailable announces the set of tools currently callable.
type ToolsAvailable struct {
	Tools []ToolDescriptor `json:"tools"`
}

func (ToolsAvailable) MessageType() string { return schemaNamespace + "ToolsAvailable" }

// SystemPromptContribution contributes a fragment to an assistant's system
// prompt. It is typically marked replayable so late-joining scopes still
// see it.
type SystemPromptContribution struct {
	Agent    string `json:"agent"`
	Key      string `json:"key"`
	Content  string `json:"content"`
	Priority int    `json:"priority"`
	Section  string `json:"section,omitempty"`
}

func (SystemPromptContribution) MessageType() string {
	return schemaNamespace + "SystemPromptContribution"
}

// RequestStatusUpdate reports the processing status of one request, as
// published by the actor driving it.
type RequestStatusUpdate struct {
	Agent  string `json:"agent"`
	Status Status `json:"status"`
}

func (RequestStatusUpdate) MessageType() string {
	return schemaNamespace + "RequestStatusUpdate"
}

// StatusUpdate is the coordinator-promoted, bus-observed form of a
// RequestStatusUpdate.
type StatusUpdate struct {
	Agent  string `json:"agent"`
	Status Status `json:"status"`
}

func (StatusUpdate) MessageType() string { return schemaNamespace + "StatusUpdate" }

// BaseUrlUpdate announces the LLM-proxy base URL and the models it serves.
// Typically marked replayable.
type BaseUrlUpdate struct {
	BaseURL        string   `json:"base_url"`
	ModelsAvailable []string `json:"models_available"`
}

func (BaseUrlUpdate) MessageType() string { return schemaNamespace + "BaseUrlUpdate" }

// UserNotification surfaces an operator-visible event.
type UserNotification struct {
	Level   NotificationLevel `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Source  string            `json:"source,omitempty"`
}

func (UserNotification) MessageType() string { return schemaNamespace + "UserNotification" }
