package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/martinemde/sfagent/unifiedllm"
)

// toolCallSignature is the tool name plus a short hash of its arguments.
// json.Marshal sorts map keys, so equal arguments hash equally.
func toolCallSignature(call unifiedllm.ToolCall) string {
	data, err := json.Marshal(call.Arguments)
	if err != nil || call.Arguments == nil {
		data = []byte(call.RawArguments)
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// DetectLoop reports whether the last windowSize calls repeat a pattern of
// length 1, 2 or 3.
func DetectLoop(calls []unifiedllm.ToolCall, windowSize int) bool {
	if windowSize <= 1 || len(calls) < windowSize {
		return false
	}
	recent := calls[len(calls)-windowSize:]
	sigs := make([]string, len(recent))
	for i, call := range recent {
		sigs[i] = toolCallSignature(call)
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || windowSize == patternLen {
			continue
		}
		match := true
		for i := patternLen; i < windowSize && match; i++ {
			match = sigs[i] == sigs[i%patternLen]
		}
		if match {
			return true
		}
	}
	return false
}
