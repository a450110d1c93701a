package models

// RequestState is an immutable snapshot of the orchestrator's view of the
// current request, pushed to UI observers on every change. At most one of
// Loading/Streaming is true at any time.
type RequestState struct {
	Visible      bool
	Loading      bool
	Streaming    bool
	Question     string
	Answer       string
	ShowComposer bool
	Err          error
}
