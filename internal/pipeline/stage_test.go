package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageTerminal(t *testing.T) {
	assert.True(t, StageComplete.Terminal())
	assert.True(t, StageError.Terminal())
	for _, s := range []Stage{StageIdle, StageFetching, StageTranscribing, StageAnalyzing, StageStreaming} {
		assert.False(t, s.Terminal(), "stage %s", s)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		// Forward edges.
		{StageIdle, StageFetching, true},
		{StageFetching, StageTranscribing, true},
		{StageTranscribing, StageAnalyzing, true},
		{StageAnalyzing, StageStreaming, true},
		{StageStreaming, StageComplete, true},
		// Skipping a stage is illegal.
		{StageIdle, StageTranscribing, false},
		{StageFetching, StageAnalyzing, false},
		{StageTranscribing, StageComplete, false},
		// Going backwards is illegal, except to idle.
		{StageAnalyzing, StageFetching, false},
		{StageComplete, StageStreaming, false},
		// Reset to idle is allowed from everywhere.
		{StageIdle, StageIdle, true},
		{StageTranscribing, StageIdle, true},
		{StageComplete, StageIdle, true},
		{StageError, StageIdle, true},
		// Error is reachable from active stages only.
		{StageFetching, StageError, true},
		{StageStreaming, StageError, true},
		{StageIdle, StageError, false},
		{StageComplete, StageError, false},
		{StageError, StageError, false},
		// Terminal stages admit no forward edges.
		{StageComplete, StageFetching, false},
		{StageError, StageFetching, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
