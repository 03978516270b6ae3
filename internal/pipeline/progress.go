package pipeline

// StepStatus is the visual state of one step in the progress view.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepActive  StepStatus = "active"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// Step is one row of the rendered progress list.
type Step struct {
	Key    Stage      `json:"key"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

// stepOrder fixes the presentation order of the pipeline steps.
var stepOrder = []Step{
	{Key: StageFetching, Label: "Fetching video"},
	{Key: StageTranscribing, Label: "Transcribing audio"},
	{Key: StageAnalyzing, Label: "Preparing analysis"},
	{Key: StageStreaming, Label: "Streaming results"},
	{Key: StageComplete, Label: "All done"},
}

// Steps derives the step list for a snapshot. It distinguishes steps not yet
// reached (pending), the step in progress (active), finished steps (done)
// and, for errored runs, the step that failed.
func Steps(snap Snapshot) []Step {
	current := snap.Stage
	failed := false
	if current == StageError {
		current = snap.FailedStage
		failed = true
	}
	currentIdx := ordinal[current]

	steps := make([]Step, len(stepOrder))
	for i, s := range stepOrder {
		idx := ordinal[s.Key]
		switch {
		case snap.Stage == StageIdle:
			s.Status = StepPending
		case idx < currentIdx:
			s.Status = StepDone
		case idx == currentIdx && failed:
			s.Status = StepFailed
		case idx == currentIdx && snap.Stage == StageComplete:
			s.Status = StepDone
		case idx == currentIdx:
			s.Status = StepActive
		default:
			s.Status = StepPending
		}
		steps[i] = s
	}
	return steps
}
