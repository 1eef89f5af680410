package models

// PipelineState tracks a drawing set analysis through its stages.
type PipelineState string

const (
	PipelineStateNotStarted   PipelineState = "not_started"
	PipelineStateFiltering    PipelineState = "filtering"
	PipelineStateFilteredOnly PipelineState = "filtered_only"
	PipelineStateExporting    PipelineState = "exporting"
	PipelineStateAnalyzing    PipelineState = "analyzing"
	PipelineStateAggregated   PipelineState = "aggregated"
	PipelineStateError        PipelineState = "error"
)

var pipelineTransitions = map[PipelineState][]PipelineState{
	PipelineStateNotStarted: {PipelineStateFiltering},
	PipelineStateFiltering:  {PipelineStateFilteredOnly, PipelineStateExporting, PipelineStateError},
	PipelineStateExporting:  {PipelineStateAnalyzing},
	PipelineStateAnalyzing:  {PipelineStateAggregated},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s PipelineState) CanTransitionTo(next PipelineState) bool {
	for _, allowed := range pipelineTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states with no successors.
func (s PipelineState) IsTerminal() bool {
	switch s {
	case PipelineStateFilteredOnly, PipelineStateAggregated, PipelineStateError:
		return true
	default:
		return false
	}
}
