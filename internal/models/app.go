package models

// AppModel represents the UI state - only local UI concerns
type AppModel struct {
	State       RequestState // Last snapshot pushed by the orchestrator
	Input       string       // Composer input field
	Status      string       // Status bar text
	LoadingDots int          // Animation counter for loading dots
	Width       int          // Terminal width
	Height      int          // Terminal height
	QueueLen    int          // Screenshots waiting for the next question
	Ready       bool         // Whether the orchestrator is available
}
