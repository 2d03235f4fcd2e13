package main

import (
	"fmt"
	"os"

	"github.com/vibewire/vibewire/session"
	"github.com/vibewire/vibewire/wire"
)

// printEvents renders the session's lifecycle events to the terminal.
// Returns an unsubscribe function.
func printEvents(sess *session.Session) func() {
	bus := sess.Bus()

	unsubs := []func(){
		bus.On(string(wire.CategoryConnected), func(any) {
			fmt.Printf("\033[36m[agent]\033[0m connected\n")
		}),
		bus.On(string(wire.CategoryPhase), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok || msg.Phase == nil {
				return
			}
			fmt.Printf("\033[36m[phase]\033[0m %s %s\n", msg.Phase.Name, phaseVerb(msg.Type))
		}),
		bus.On(string(wire.CategoryFile), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok {
				return
			}
			switch msg.Type {
			case wire.TypeFileGenerated, wire.TypeFileRegenerated:
				if msg.File != nil {
					fmt.Printf("\033[36m[file]\033[0m %s\n", msg.File.FilePath)
				}
			case wire.TypeFileGenerating:
				if msg.FilePath != "" {
					fmt.Printf("\033[2m[file]\033[0m %s...\n", msg.FilePath)
				}
			}
		}),
		bus.On(string(wire.CategoryGeneration), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok {
				return
			}
			switch msg.Type {
			case wire.TypeGenerationStarted:
				fmt.Printf("\033[36m[generation]\033[0m started (%d files)\n", msg.TotalFiles)
			case wire.TypeGenerationComplete:
				fmt.Printf("\033[32m[generation]\033[0m complete\n")
			case wire.TypeGenerationStopped:
				fmt.Printf("\033[33m[generation]\033[0m stopped\n")
			case wire.TypeGenerationResumed:
				fmt.Printf("\033[36m[generation]\033[0m resumed\n")
			}
		}),
		bus.On(string(wire.CategoryPreview), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok {
				return
			}
			switch msg.Type {
			case wire.TypeDeploymentCompleted:
				fmt.Printf("\033[32m[preview]\033[0m %s\n", msg.PreviewURL)
			case wire.TypeDeploymentFailed:
				fmt.Fprintf(os.Stderr, "\033[31m[preview]\033[0m failed: %s\n", msg.Error)
			}
		}),
		bus.On(string(wire.CategoryCloudflare), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok {
				return
			}
			switch msg.Type {
			case wire.TypeCloudflareDeploymentCompleted:
				fmt.Printf("\033[32m[deploy]\033[0m %s\n", msg.DeploymentURL)
			case wire.TypeCloudflareDeploymentError:
				fmt.Fprintf(os.Stderr, "\033[31m[deploy]\033[0m failed: %s\n", msg.Error)
			}
		}),
		bus.On(string(wire.CategoryError), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "\033[31m[error]\033[0m %s\n", msg.Error)
		}),
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func phaseVerb(msgType string) string {
	switch msgType {
	case wire.TypePhaseGenerating:
		return "generating..."
	case wire.TypePhaseGenerated:
		return "generated"
	case wire.TypePhaseImplementing:
		return "implementing..."
	case wire.TypePhaseImplemented:
		return "implemented"
	case wire.TypePhaseValidating:
		return "validating..."
	case wire.TypePhaseValidated:
		return "validated"
	default:
		return msgType
	}
}
