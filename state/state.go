// Package state holds the derived session state and the pure reducer that
// projects the server message stream into it.
package state

import "encoding/json"

// ConnectionStatus is the transport-level connection sub-machine.
type ConnectionStatus string

const (
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnConnecting   ConnectionStatus = "connecting"
	ConnConnected    ConnectionStatus = "connected"
)

// GenerationStatus is the file-generation sub-machine.
type GenerationStatus string

const (
	GenIdle     GenerationStatus = "idle"
	GenRunning  GenerationStatus = "running"
	GenStopped  GenerationStatus = "stopped"
	GenComplete GenerationStatus = "complete"
)

// Generation tracks overall file-generation progress.
type Generation struct {
	Status         GenerationStatus `json:"status"`
	TotalFiles     int              `json:"totalFiles,omitempty"`
	FilesGenerated int              `json:"filesGenerated"`
	InstanceID     string           `json:"instanceId,omitempty"`
	PreviewURL     string           `json:"previewURL,omitempty"`
}

// PhaseStatus is the build-phase sub-machine for phased agents.
type PhaseStatus string

const (
	PhaseIdle         PhaseStatus = "idle"
	PhaseGenerating   PhaseStatus = "generating"
	PhaseGenerated    PhaseStatus = "generated"
	PhaseImplementing PhaseStatus = "implementing"
	PhaseImplemented  PhaseStatus = "implemented"
	PhaseValidating   PhaseStatus = "validating"
	PhaseValidated    PhaseStatus = "validated"
)

// Phase is the current named build phase.
type Phase struct {
	Status      PhaseStatus `json:"status"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
}

// DeployStatus is shared by the preview and cloudflare sub-machines.
type DeployStatus string

const (
	DeployIdle     DeployStatus = "idle"
	DeployRunning  DeployStatus = "running"
	DeployFailed   DeployStatus = "failed"
	DeployComplete DeployStatus = "complete"
)

// Preview tracks the preview deployment.
type Preview struct {
	Status     DeployStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	PreviewURL string       `json:"previewURL,omitempty"`
	TunnelURL  string       `json:"tunnelURL,omitempty"`
	InstanceID string       `json:"instanceId,omitempty"`
}

// Cloudflare tracks the Cloudflare Workers deployment.
type Cloudflare struct {
	Status        DeployStatus `json:"status"`
	Error         string       `json:"error,omitempty"`
	DeploymentURL string       `json:"deploymentUrl,omitempty"`
	InstanceID    string       `json:"instanceId,omitempty"`
}

// State is an immutable snapshot of everything the runtime has derived from
// the message stream. Each reduction replaces the snapshot wholesale; the
// five sub-machines transition only through their own documented edges and
// unknown message types leave the snapshot unchanged.
type State struct {
	Connection ConnectionStatus `json:"connection"`
	Generation Generation       `json:"generation"`
	Phase      Phase            `json:"phase"`
	Preview    Preview          `json:"preview"`
	Cloudflare Cloudflare       `json:"cloudflare"`

	CurrentFile       string          `json:"currentFile,omitempty"`
	PreviewURL        string          `json:"previewUrl,omitempty"`
	LastError         string          `json:"lastError,omitempty"`
	BehaviorType      string          `json:"behaviorType,omitempty"`
	ProjectType       string          `json:"projectType,omitempty"`
	ConversationState json.RawMessage `json:"conversationState,omitempty"`
}

// Initial is the state of a fresh session before any message arrives.
func Initial() State {
	return State{
		Connection: ConnDisconnected,
		Generation: Generation{Status: GenIdle},
		Phase:      Phase{Status: PhaseIdle},
		Preview:    Preview{Status: DeployIdle},
		Cloudflare: Cloudflare{Status: DeployIdle},
	}
}

// Change is the payload of the state change event: the snapshot before and
// after one reduction step.
type Change struct {
	Prev State
	Next State
}

// EventChange is the bus event emitted after every state replacement.
const EventChange = "state_change"
