package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/martinemde/sfagent/unifiedllm"
)

// Built-in tool names.
const (
	ListDirToolName   = "list_dir"
	ReadFileToolName  = "read_file"
	WriteFileToolName = "write_file"
	ShellToolName     = "shell"
)

// BuiltinOptions configures RegisterBuiltinTools.
type BuiltinOptions struct {
	// ReadOnly leaves out write_file and shell.
	ReadOnly bool
	// NoShell leaves out shell.
	NoShell bool
	// FinishTool is registered as the completion tool unless empty.
	FinishTool string

	DefaultCommandTimeoutMs int
	MaxCommandTimeoutMs     int
}

// DefaultBuiltinOptions registers every built-in tool with complete_task as
// the finish tool.
func DefaultBuiltinOptions() BuiltinOptions {
	return BuiltinOptions{
		FinishTool:              CompleteTaskToolName,
		DefaultCommandTimeoutMs: 10_000,
		MaxCommandTimeoutMs:     600_000,
	}
}

const reasoningDescription = "Why this call is needed to complete the task."

type listDirArgs struct {
	Reasoning string `json:"reasoning,omitempty" jsonschema:"description=Why this call is needed to complete the task."`
	Path      string `json:"path" jsonschema:"description=Directory to list. Relative paths resolve against the working directory."`
	Depth     int    `json:"depth,omitempty" jsonschema:"description=How many levels to descend. Default: 1."`
}

type readFileArgs struct {
	Reasoning string `json:"reasoning,omitempty" jsonschema:"description=Why this call is needed to complete the task."`
	Path      string `json:"path" jsonschema:"description=File to read."`
	Offset    int    `json:"offset,omitempty" jsonschema:"description=1-based line number to start reading from."`
	Limit     int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read. Default: 2000."`
}

type completeTaskArgs struct {
	Reasoning string `json:"reasoning" jsonschema:"description=Short summary of what was done."`
}

// RegisterBuiltinTools registers the file and shell tools backed by env and,
// when opts.FinishTool is set, the finish tool.
func RegisterBuiltinTools(reg *ToolRegistry, env ExecutionEnvironment, opts BuiltinOptions) error {
	if opts.DefaultCommandTimeoutMs <= 0 {
		opts.DefaultCommandTimeoutMs = DefaultBuiltinOptions().DefaultCommandTimeoutMs
	}
	if opts.MaxCommandTimeoutMs < opts.DefaultCommandTimeoutMs {
		opts.MaxCommandTimeoutMs = opts.DefaultCommandTimeoutMs
	}

	defs := []ToolDefinition{listDirTool(env), readFileTool(env)}
	if !opts.ReadOnly {
		defs = append(defs, writeFileTool(env))
		if !opts.NoShell {
			defs = append(defs, shellTool(env, opts.DefaultCommandTimeoutMs, opts.MaxCommandTimeoutMs))
		}
	}
	if opts.FinishTool != "" {
		defs = append(defs, CompleteTaskTool(opts.FinishTool))
	}

	var errs []error
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CompleteTaskTool returns the finish tool under the given name. Its
// payload is the model's summary.
func CompleteTaskTool(name string) ToolDefinition {
	return NewTypedTool(name,
		"Signal that the task is complete. Call this once, after all work is done.",
		func(_ context.Context, args completeTaskArgs) (any, error) {
			summary := strings.TrimSpace(args.Reasoning)
			if summary == "" {
				return "Task completed successfully", nil
			}
			return summary, nil
		})
}

func listDirTool(env ExecutionEnvironment) ToolDefinition {
	return NewTypedTool(ListDirToolName,
		"List the files and directories under a path. Directories end with '/'.",
		func(_ context.Context, args listDirArgs) (any, error) {
			path := args.Path
			if path == "" {
				path = "."
			}
			depth := args.Depth
			if depth <= 0 {
				depth = 1
			}
			entries, err := env.ListDirectory(path, depth)
			if err != nil {
				return nil, err
			}
			if len(entries) == 0 {
				return "(empty directory)", nil
			}
			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir {
					fmt.Fprintf(&sb, "%s/\n", e.Path)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Path, e.Size)
				}
			}
			return strings.TrimRight(sb.String(), "\n"), nil
		})
}

func readFileTool(env ExecutionEnvironment) ToolDefinition {
	return NewTypedTool(ReadFileToolName,
		"Read a file from the filesystem. Returns line-numbered content.",
		func(_ context.Context, args readFileArgs) (any, error) {
			if args.Path == "" {
				return nil, errors.New("path is required")
			}
			limit := args.Limit
			if limit <= 0 {
				limit = 2000
			}
			return env.ReadFile(args.Path, args.Offset, limit)
		})
}

func writeFileTool(env ExecutionEnvironment) ToolDefinition {
	return ToolDefinition{
		Name:        WriteFileToolName,
		Description: "Write content to a file. Creates the file and parent directories if needed and replaces any existing content.",
		Parameters: unifiedllm.Object(map[string]*unifiedllm.Schema{
			"reasoning": unifiedllm.String(reasoningDescription),
			"path":      unifiedllm.String("File to write."),
			"content":   unifiedllm.String("The full file content to write."),
		}, "path", "content"),
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			path, _ := GetStringArg(args, "path")
			content, _ := GetStringArg(args, "content")
			if path == "" {
				return nil, errors.New("path is required")
			}
			if err := env.WriteFile(path, content); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
		},
	}
}

func shellTool(env ExecutionEnvironment, defaultTimeoutMs, maxTimeoutMs int) ToolDefinition {
	return ToolDefinition{
		Name:        ShellToolName,
		Description: "Execute a shell command in the working directory. Returns stdout, stderr, and the exit code.",
		Parameters: unifiedllm.Object(map[string]*unifiedllm.Schema{
			"reasoning":  unifiedllm.String(reasoningDescription),
			"command":    unifiedllm.String("The command to run."),
			"timeout_ms": unifiedllm.Integer(fmt.Sprintf("Override the command timeout in milliseconds. Default: %d.", defaultTimeoutMs)),
		}, "command"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			command, _ := GetStringArg(args, "command")
			if strings.TrimSpace(command) == "" {
				return nil, errors.New("command is required")
			}
			timeoutMs, _ := GetIntArg(args, "timeout_ms")
			if timeoutMs <= 0 {
				timeoutMs = defaultTimeoutMs
			}
			timeoutMs = min(timeoutMs, maxTimeoutMs)

			result, err := env.ExecCommand(ctx, command, timeoutMs, "", nil)
			if err != nil {
				return nil, err
			}

			var sb strings.Builder
			sb.WriteString(result.Output())
			if result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[ERROR: Command timed out after %dms. Partial output is shown above.\n"+
					"You can retry with a longer timeout by setting the timeout_ms parameter.]", timeoutMs)
			} else if result.ExitCode != 0 {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}
			return sb.String(), nil
		},
	}
}
