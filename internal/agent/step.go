package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Step kinds the model may emit. Anything else is a protocol violation
// surfaced to the caller.
const (
	StepPlan    = "plan"
	StepAction  = "action"
	StepObserve = "observe"
	StepOutput  = "output"
)

// Step is one decoded step-protocol message from the model.
type Step struct {
	Step     string          `json:"step"`
	Content  string          `json:"content,omitempty"`
	Function string          `json:"function,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// decodeStep parses the model's raw JSON reply into a Step and validates
// the step kind. Models occasionally wrap the object in markdown fences;
// strip those before decoding.
func decodeStep(raw string) (*Step, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var s Step
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("model reply is not a valid step object: %w", err)
	}

	switch s.Step {
	case StepPlan, StepAction, StepObserve, StepOutput:
		return &s, nil
	default:
		return nil, fmt.Errorf("model emitted unrecognized step %q", s.Step)
	}
}

// Args normalizes the step's input for tool execution. Objects decode
// directly; a bare string binds to primaryKey (the tool's first required
// parameter), falling back to defaultValue when the input is empty.
func (s *Step) Args(primaryKey, defaultValue string) map[string]any {
	if len(s.Input) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(s.Input, &obj); err == nil {
			return obj
		}
		var str string
		if err := json.Unmarshal(s.Input, &str); err == nil && str != "" && primaryKey != "" {
			return map[string]any{primaryKey: str}
		}
	}
	if defaultValue != "" && primaryKey != "" {
		return map[string]any{primaryKey: defaultValue}
	}
	return nil
}

// Record is a step kept for debugging and UI timelines, mirroring the
// model's raw payload.
type Record struct {
	Step    string         `json:"step"`
	Payload map[string]any `json:"payload"`
}

// recordOf builds a Record from a decoded step.
func recordOf(s *Step) Record {
	payload := map[string]any{"step": s.Step}
	if s.Content != "" {
		payload["content"] = s.Content
	}
	if s.Function != "" {
		payload["function"] = s.Function
	}
	if len(s.Input) > 0 {
		var input any
		if err := json.Unmarshal(s.Input, &input); err == nil {
			payload["input"] = input
		}
	}
	return Record{Step: s.Step, Payload: payload}
}
