// Package wire defines the message vocabulary spoken over the agent
// websocket and the normalizer that turns raw frames into typed messages.
//
// The server side of the protocol is version-tolerant and open-ended:
// unknown message types are carried through untouched and must be ignored
// by consumers, never treated as fatal.
package wire

import "encoding/json"

// Server message types. The set is open-ended; these are the types the
// runtime reacts to.
const (
	TypeConnected            = "connected"
	TypeConversationResponse = "conversation_response"
	TypeConversationState    = "conversation_state"
	TypeConversationCleared  = "conversation_cleared"
	TypeStateSnapshot        = "state_snapshot"

	TypeGenerationStarted  = "generation_started"
	TypeGenerationComplete = "generation_complete"
	TypeGenerationStopped  = "generation_stopped"
	TypeGenerationResumed  = "generation_resumed"

	TypeFileGenerating     = "file_generating"
	TypeFileGenerated      = "file_generated"
	TypeFileRegenerated    = "file_regenerated"
	TypeFileChunkGenerated = "file_chunk_generated"

	TypePhaseGenerating   = "phase_generating"
	TypePhaseGenerated    = "phase_generated"
	TypePhaseImplementing = "phase_implementing"
	TypePhaseImplemented  = "phase_implemented"
	TypePhaseValidating   = "phase_validating"
	TypePhaseValidated    = "phase_validated"

	TypeDeploymentStarted   = "deployment_started"
	TypeDeploymentFailed    = "deployment_failed"
	TypeDeploymentCompleted = "deployment_completed"

	TypeCloudflareDeploymentStarted   = "cloudflare_deployment_started"
	TypeCloudflareDeploymentError     = "cloudflare_deployment_error"
	TypeCloudflareDeploymentCompleted = "cloudflare_deployment_completed"

	TypeError = "error"
)

// Client command types.
const (
	CmdSessionInit          = "session_init"
	CmdGenerateAll          = "generate_all"
	CmdStopGeneration       = "stop_generation"
	CmdResumeGeneration     = "resume_generation"
	CmdPreview              = "preview"
	CmdDeploy               = "deploy"
	CmdGetConversationState = "get_conversation_state"
	CmdClearConversation    = "clear_conversation"
	CmdUserSuggestion       = "user_suggestion"
)

// Behavior types reported by the platform in state snapshots and session
// descriptors. Phased agents run the named phase pipeline; freeform agents
// generate files without phases.
const (
	BehaviorPhased   = "phased"
	BehaviorFreeform = "freeform"
)

// File is a single generated file as carried inside file lifecycle messages
// and snapshot file maps.
type File struct {
	FilePath     string `json:"filePath"`
	FileContents string `json:"fileContents"`
}

// Phase describes the named build stage a phase lifecycle message refers to.
type Phase struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AgentState is the full agent snapshot the server sends (or that the
// normalizer synthesizes from an envelope-less payload).
type AgentState struct {
	BehaviorType      string          `json:"behaviorType"`
	ProjectType       string          `json:"projectType"`
	GeneratedFilesMap map[string]File `json:"generatedFilesMap,omitempty"`
	ConversationState json.RawMessage `json:"conversationState,omitempty"`
}

// Message is the canonical typed server message. Exactly one of the
// payload groups is populated depending on Type; unused fields are zero.
// Messages are produced only by Normalize, never constructed by callers.
type Message struct {
	Type string `json:"type"`

	// Connection / generic.
	AgentID string `json:"agentId,omitempty"`
	Error   string `json:"error,omitempty"`
	Text    string `json:"message,omitempty"`

	// Generation lifecycle.
	TotalFiles int    `json:"totalFiles,omitempty"`
	InstanceID string `json:"instanceId,omitempty"`
	PreviewURL string `json:"previewURL,omitempty"`

	// File lifecycle.
	FilePath string `json:"filePath,omitempty"`
	Chunk    string `json:"chunk,omitempty"`
	File     *File  `json:"file,omitempty"`

	// Phase lifecycle.
	Phase *Phase `json:"phase,omitempty"`

	// Deployment lifecycle.
	TunnelURL     string `json:"tunnelURL,omitempty"`
	DeploymentURL string `json:"deploymentUrl,omitempty"`

	// Snapshot / conversation.
	State             *AgentState     `json:"state,omitempty"`
	ConversationState json.RawMessage `json:"conversationState,omitempty"`

	// Raw is the original frame the message was normalized from. Not
	// re-serialized.
	Raw json.RawMessage `json:"-"`
}

// ClientMessage is a command serialized verbatim to the wire.
type ClientMessage struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken,omitempty"`
	Message      string `json:"message,omitempty"`
}

// SessionInit builds the authentication handshake command. The token is
// ephemeral: it is sent on every open and never persisted.
func SessionInit(token string) ClientMessage {
	return ClientMessage{Type: CmdSessionInit, SessionToken: token}
}

// UserSuggestion builds a free-text suggestion command.
func UserSuggestion(message string) ClientMessage {
	return ClientMessage{Type: CmdUserSuggestion, Message: message}
}

// Command builds a bare command with no payload.
func Command(cmdType string) ClientMessage {
	return ClientMessage{Type: cmdType}
}
