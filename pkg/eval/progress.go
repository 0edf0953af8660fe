package eval

type EventType string

const (
	EventEvalStart        EventType = "eval_start"
	EventScenarioStart    EventType = "scenario_start"
	EventStepComplete     EventType = "step_complete"
	EventScenarioComplete EventType = "scenario_complete"
	EventScenarioError    EventType = "scenario_error"
	EventEvalComplete     EventType = "eval_complete"
)

type ProgressEvent struct {
	Type     EventType
	Message  string
	Scenario *ScenarioResult
	// Step is set for EventStepComplete.
	Step *StepRecord
	// Summary is set for EventEvalComplete.
	Summary *RunSummary
}

type ProgressCallback func(event ProgressEvent)

func NoopProgressCallback(ProgressEvent) {}
