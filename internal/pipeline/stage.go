// Package pipeline provides the orchestrator that drives a video analysis
// run through its stages: metadata fetch, transcription, and streaming
// structured analysis.
package pipeline

// Stage is the single source of truth for how far a run has progressed.
// It advances monotonically through the forward stages; Error absorbs any
// failure and only a user-initiated reset returns to Idle.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageFetching     Stage = "fetching-video"
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
	StageStreaming    Stage = "streaming"
	StageComplete     Stage = "complete"
	StageError        Stage = "error"
)

// forwardTransitions enumerates the legal forward edges. Error is reachable
// from every active stage and Idle from anywhere via reset; both are handled
// in CanTransition rather than listed per stage.
var forwardTransitions = map[Stage]Stage{
	StageIdle:         StageFetching,
	StageFetching:     StageTranscribing,
	StageTranscribing: StageAnalyzing,
	StageAnalyzing:    StageStreaming,
	StageStreaming:    StageComplete,
}

// Terminal reports whether a run in this stage has finished, successfully
// or not.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// CanTransition reports whether moving from s to next is a legal edge of the
// state machine.
func (s Stage) CanTransition(next Stage) bool {
	if next == StageIdle {
		return true // user reset is allowed from any state
	}
	if next == StageError {
		return !s.Terminal() && s != StageIdle
	}
	return forwardTransitions[s] == next
}

// ordinal positions stages for progress rendering. Error has no position of
// its own; the presenter marks the stage that failed.
var ordinal = map[Stage]int{
	StageIdle:         0,
	StageFetching:     1,
	StageTranscribing: 2,
	StageAnalyzing:    3,
	StageStreaming:    4,
	StageComplete:     5,
}
