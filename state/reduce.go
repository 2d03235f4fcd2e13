package state

import (
	"github.com/vibewire/vibewire/wire"
)

// phaseStatuses maps the six phase lifecycle message types onto the phase
// sub-machine.
var phaseStatuses = map[string]PhaseStatus{
	wire.TypePhaseGenerating:   PhaseGenerating,
	wire.TypePhaseGenerated:    PhaseGenerated,
	wire.TypePhaseImplementing: PhaseImplementing,
	wire.TypePhaseImplemented:  PhaseImplemented,
	wire.TypePhaseValidating:   PhaseValidating,
	wire.TypePhaseValidated:    PhaseValidated,
}

// Reduce projects one typed message onto the state, returning the next
// snapshot. It is pure: the same (state, message) pair always yields the
// same result, regardless of what transport delivered the message.
// Unrecognized message types return the state unchanged.
func Reduce(s State, msg *wire.Message) State {
	if msg == nil {
		return s
	}

	if status, ok := phaseStatuses[msg.Type]; ok {
		s.Phase = Phase{Status: status}
		if msg.Phase != nil {
			s.Phase.Name = msg.Phase.Name
			s.Phase.Description = msg.Phase.Description
		}
		return s
	}

	switch msg.Type {
	case wire.TypeConnected:
		s.Connection = ConnConnected

	case wire.TypeGenerationStarted:
		s.Generation = Generation{
			Status:     GenRunning,
			TotalFiles: msg.TotalFiles,
		}
		s.CurrentFile = ""

	case wire.TypeFileGenerating:
		s.CurrentFile = msg.FilePath

	case wire.TypeFileGenerated, wire.TypeFileRegenerated:
		// Count only while a run is live or stopped; a stray file event
		// arriving before generation_started is dropped rather than
		// counted against a run that does not exist yet.
		if s.Generation.Status == GenRunning || s.Generation.Status == GenStopped {
			s.Generation.FilesGenerated++
			s.CurrentFile = ""
		}

	case wire.TypeGenerationStopped:
		s.Generation.Status = GenStopped

	case wire.TypeGenerationResumed:
		s.Generation.Status = GenRunning

	case wire.TypeGenerationComplete:
		s.Generation = Generation{
			Status:         GenComplete,
			TotalFiles:     s.Generation.TotalFiles,
			FilesGenerated: s.Generation.FilesGenerated,
			InstanceID:     msg.InstanceID,
			PreviewURL:     msg.PreviewURL,
		}
		s.CurrentFile = ""
		if msg.PreviewURL != "" {
			s.PreviewURL = msg.PreviewURL
		}

	case wire.TypeDeploymentStarted:
		s.Preview = Preview{Status: DeployRunning}

	case wire.TypeDeploymentFailed:
		s.Preview = Preview{Status: DeployFailed, Error: msg.Error}

	case wire.TypeDeploymentCompleted:
		s.Preview = Preview{
			Status:     DeployComplete,
			PreviewURL: msg.PreviewURL,
			TunnelURL:  msg.TunnelURL,
			InstanceID: msg.InstanceID,
		}
		if msg.PreviewURL != "" {
			s.PreviewURL = msg.PreviewURL
		}

	case wire.TypeCloudflareDeploymentStarted:
		s.Cloudflare = Cloudflare{Status: DeployRunning}

	case wire.TypeCloudflareDeploymentError:
		s.Cloudflare = Cloudflare{Status: DeployFailed, Error: msg.Error}

	case wire.TypeCloudflareDeploymentCompleted:
		s.Cloudflare = Cloudflare{
			Status:        DeployComplete,
			DeploymentURL: msg.DeploymentURL,
			InstanceID:    msg.InstanceID,
		}

	case wire.TypeError:
		s.LastError = msg.Error

	case wire.TypeStateSnapshot:
		if msg.State != nil {
			s.BehaviorType = msg.State.BehaviorType
			s.ProjectType = msg.State.ProjectType
			if msg.State.ConversationState != nil {
				s.ConversationState = msg.State.ConversationState
			}
		}

	case wire.TypeConversationState:
		if msg.ConversationState != nil {
			s.ConversationState = msg.ConversationState
		}

	case wire.TypeConversationCleared:
		s.ConversationState = nil
	}

	return s
}
