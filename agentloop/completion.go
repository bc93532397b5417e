package agentloop

import "github.com/martinemde/sfagent/unifiedllm"

// CompletionReason says which rule ended the task.
type CompletionReason string

const (
	CompletedByFinishTool  CompletionReason = "finish_tool"
	CompletedByNaturalStop CompletionReason = "natural_stop"
)

// Completion is the verdict for one turn.
type Completion struct {
	Done      bool
	Reason    CompletionReason
	FinalText string
}

// CompletionDetector decides whether a turn finished the task. A
// successful call to FinishTool wins over everything else, even when the
// same turn carries trailing text; otherwise a natural stop without tool
// calls completes the task. Leave FinishTool empty to disable the first rule.
type CompletionDetector struct {
	FinishTool string
}

// Check inspects a response and the results of its tool calls, which
// must be in call order.
func (d CompletionDetector) Check(resp *unifiedllm.Response, results []unifiedllm.ToolResult) Completion {
	calls := resp.ToolCalls()

	if d.FinishTool != "" {
		// results[i] answers calls[i]; IDs are not trusted to be unique.
		for i, call := range calls {
			if call.Name != d.FinishTool || i >= len(results) || results[i].IsError() {
				continue
			}
			text := resp.Text()
			if text == "" {
				text = results[i].PayloadString()
			}
			return Completion{Done: true, Reason: CompletedByFinishTool, FinalText: text}
		}
	}

	if resp.StopReason == unifiedllm.StopNatural && len(calls) == 0 {
		return Completion{Done: true, Reason: CompletedByNaturalStop, FinalText: resp.Text()}
	}
	return Completion{}
}
