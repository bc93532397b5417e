// Package agentloop runs an LLM agent until a task is done.
//
// A Session sends the conversation and the tool listing to a
// unifiedllm.Completer, executes the tool calls the model asks for, appends
// the results, and repeats until the CompletionDetector says the task is
// finished, the iteration budget runs out, or a provider call fails. Each
// run ends in exactly one Outcome: completed, exhausted or failed.
//
// # Architecture
//
//   - ToolRegistry: tool definitions keyed by name, each with a canonical
//     unifiedllm.Schema and a handler.
//   - ToolExecutor: validates arguments and runs handlers inside a fault
//     boundary. Unknown tools, bad arguments, returned errors, panics and
//     timeouts all become error results the model can read.
//   - CompletionDetector: a successful call to the finish tool completes
//     the task; so does a natural stop without tool calls.
//   - Session: the loop itself. Retries are not its concern; wrap the
//     provider with unifiedllm.RetryMiddleware instead.
//   - Observer: receives a SessionEvent at each step. LogObserver writes
//     them to a *slog.Logger.
//
// Built-in tools (list_dir, read_file, write_file, shell, complete_task)
// run against an ExecutionEnvironment. Tools served by stdio MCP servers
// are bridged with StartMCPServer and RegisterMCPTools.
//
// # Quick Start
//
//	reg := agentloop.NewToolRegistry()
//	env := agentloop.NewLocalExecutionEnvironment("/path/to/project")
//	if err := agentloop.RegisterBuiltinTools(reg, env, agentloop.DefaultBuiltinOptions()); err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := agentloop.DefaultSessionConfig()
//	cfg.Model = "claude-sonnet-4-5"
//	cfg.SystemPrompt = agentloop.BuildSystemPrompt(agentloop.PromptOptions{
//	    FinishTool: cfg.FinishTool,
//	    Env:        env,
//	})
//
//	session := agentloop.NewSession(client, reg, &cfg, agentloop.NewLogObserver(logger))
//	outcome := session.Run(ctx, "List the files in the current directory")
//	if !outcome.Succeeded() {
//	    log.Fatalf("%s: %v", outcome.Status, outcome.Err)
//	}
//	fmt.Println(outcome.FinalText)
package agentloop
