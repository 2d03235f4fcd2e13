package wire

// Category is the coarse sugar event a typed message is re-published under
// after the canonical message event. Subscribers choose between exact types
// (by filtering message events) and these coarse groupings.
type Category string

const (
	CategoryConnected    Category = "connected"
	CategoryConversation Category = "conversation"
	CategoryPhase        Category = "phase"
	CategoryFile         Category = "file"
	CategoryGeneration   Category = "generation"
	CategoryPreview      Category = "preview"
	CategoryCloudflare   Category = "cloudflare"
	CategoryError        Category = "error"
)

// categories is the fixed type→category routing table. Types absent from
// the table (state_snapshot included) have no sugar event and are observed
// on the message event only.
var categories = map[string]Category{
	TypeConnected: CategoryConnected,

	TypeConversationResponse: CategoryConversation,
	TypeConversationState:    CategoryConversation,
	TypeConversationCleared:  CategoryConversation,

	TypePhaseGenerating:   CategoryPhase,
	TypePhaseGenerated:    CategoryPhase,
	TypePhaseImplementing: CategoryPhase,
	TypePhaseImplemented:  CategoryPhase,
	TypePhaseValidating:   CategoryPhase,
	TypePhaseValidated:    CategoryPhase,

	TypeFileGenerating:     CategoryFile,
	TypeFileGenerated:      CategoryFile,
	TypeFileRegenerated:    CategoryFile,
	TypeFileChunkGenerated: CategoryFile,

	TypeGenerationStarted:  CategoryGeneration,
	TypeGenerationComplete: CategoryGeneration,
	TypeGenerationStopped:  CategoryGeneration,
	TypeGenerationResumed:  CategoryGeneration,

	TypeDeploymentStarted:   CategoryPreview,
	TypeDeploymentFailed:    CategoryPreview,
	TypeDeploymentCompleted: CategoryPreview,

	TypeCloudflareDeploymentStarted:   CategoryCloudflare,
	TypeCloudflareDeploymentError:     CategoryCloudflare,
	TypeCloudflareDeploymentCompleted: CategoryCloudflare,

	TypeError: CategoryError,
}

// CategoryOf returns the sugar category for a message type, if it has one.
func CategoryOf(msgType string) (Category, bool) {
	c, ok := categories[msgType]
	return c, ok
}
