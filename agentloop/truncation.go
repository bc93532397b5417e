package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode specifies which part of an oversized output is kept.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// defaultCharLimit applies to tools without an entry below, including tools
// bridged from MCP servers.
const defaultCharLimit = 30000

// DefaultToolCharLimits are per-tool character budgets for results sent to
// the model.
var DefaultToolCharLimits = map[string]int{
	"read_file":  50000,
	"shell":      30000,
	"list_dir":   20000,
	"write_file": 1000,
}

// DefaultTruncationModes are per-tool truncation modes; head_tail otherwise.
var DefaultTruncationModes = map[string]TruncationMode{
	"read_file":  TruncateHeadTail,
	"shell":      TruncateHeadTail,
	"list_dir":   TruncateTail,
	"write_file": TruncateTail,
}

// DefaultToolLineLimits are applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	"shell":    256,
	"list_dir": 500,
}

// TruncateOutput cuts output to about maxChars bytes, never splitting a
// UTF-8 sequence, and inserts a marker saying how much was removed.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	if mode == TruncateTail {
		tail := output[runeStart(output, len(output)-maxChars):]
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", removed) + tail
	}

	half := maxChars / 2
	head := output[:runeStart(output, half)]
	tail := output[runeStart(output, len(output)-half):]
	return head +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"Re-run the tool with more targeted parameters to see specific parts.]\n\n", removed) +
		tail
}

// runeStart moves i back to the start of the rune containing it.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// TruncateLines keeps the first and last lines of output, maxLines in total.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies character truncation, then line truncation,
// using the overrides in charLimits and lineLimits before the defaults.
func TruncateToolOutput(output string, toolName string, charLimits map[string]int, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = defaultCharLimit
		}
	}
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	maxLines, ok := lineLimits[toolName]
	if !ok {
		maxLines = DefaultToolLineLimits[toolName]
	}
	return TruncateLines(result, maxLines)
}
