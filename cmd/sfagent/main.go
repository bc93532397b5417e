// Sfagent runs a single-file style tool-calling agent from the command
// line.
//
// Usage:
//
//	sfagent -p "list the go files and summarize them" [-c 10] [-m model]
//	        [-provider gemini] [-config sfagent.yaml] [-o out.md]
//	        [-workdir dir] [-mcp-command "npx -y server ..."]...
//
// Configuration is layered: defaults, the YAML file (see
// [config.DefaultSearchPaths]), .env and the environment, then flags.
// The final answer is printed to stdout and logs go to stderr. The exit
// status is non-zero when the run fails or hits its compute limit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/sfagent/agentloop"
	"github.com/martinemde/sfagent/internal/config"
	"github.com/martinemde/sfagent/unifiedllm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		stop()
		os.Exit(1)
	}
}

// completerFactory builds the provider client for cfg. The returned close
// function releases adapter resources.
type completerFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (unifiedllm.Completer, func() error, error)

// run is the real entry point. It returns nil only when the task
// completed.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	return execute(ctx, stdout, stderr, args, newProviderClient)
}

func execute(ctx context.Context, stdout, stderr io.Writer, args []string, newCompleter completerFactory) error {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.LoadOptions{Path: opts.configPath})
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stderr, level, cfg.LogFormat)

	workDir, err := resolveWorkDir(cfg.WorkDir)
	if err != nil {
		return err
	}
	model := cfg.ResolvedModel()
	logger.Info("starting agent",
		"provider", cfg.Provider,
		"model", model,
		"workdir", workDir,
		"compute_limit", cfg.MaxIterations,
	)

	completer, closeCompleter, err := newCompleter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCompleter(); err != nil {
			logger.Warn("closing provider client", "error", err)
		}
	}()

	env := agentloop.NewLocalExecutionEnvironment(workDir)
	registry := agentloop.NewToolRegistry()
	builtin := agentloop.DefaultBuiltinOptions()
	builtin.ReadOnly = cfg.ReadOnly
	builtin.NoShell = cfg.NoShell
	builtin.FinishTool = cfg.Agent.FinishTool
	if err := agentloop.RegisterBuiltinTools(registry, env, builtin); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	servers, err := startMCPServers(ctx, cfg.MCPServers, registry, logger)
	defer func() {
		for _, s := range servers {
			if err := s.Close(); err != nil {
				logger.Warn("closing MCP server", "server", s.Name, "error", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	systemPrompt := agentloop.BuildSystemPrompt(agentloop.PromptOptions{
		Description:  cfg.Agent.Description,
		Instructions: cfg.Agent.Instructions,
		FinishTool:   cfg.Agent.FinishTool,
		Provider:     cfg.Provider,
		Model:        model,
		Env:          env,
		ProjectDocs:  cfg.Agent.ProjectDocs,
	})

	session := agentloop.NewSession(completer, registry, &agentloop.SessionConfig{
		Model:               model,
		Provider:            cfg.Provider,
		SystemPrompt:        systemPrompt,
		MaxIterations:       cfg.MaxIterations,
		MaxTokens:           cfg.MaxTokens,
		Temperature:         cfg.Temperature,
		FinishTool:          cfg.Agent.FinishTool,
		ParallelTools:       cfg.ParallelTools,
		ProviderTimeout:     cfg.ProviderTimeout,
		ToolTimeout:         cfg.ToolTimeout,
		EnableLoopDetection: cfg.LoopDetection,
	}, agentloop.NewLogObserver(logger))

	outcome := session.Run(ctx, buildPrompt(opts.prompt, opts.outputPath))
	if outcome.FinalText != "" {
		fmt.Fprintln(stdout, outcome.FinalText)
	}
	logger.Info("agent finished",
		"status", outcome.Status,
		"iterations", outcome.Iterations,
		"input_tokens", outcome.Usage.InputTokens,
		"output_tokens", outcome.Usage.OutputTokens,
	)

	switch outcome.Status {
	case agentloop.StatusCompleted:
		return nil
	case agentloop.StatusExhausted:
		return fmt.Errorf("compute limit of %d iterations reached without completing the task", cfg.MaxIterations)
	default:
		return fmt.Errorf("agent failed (%s): %w", outcome.ErrorKind, outcome.Err)
	}
}

// newProviderClient wraps the configured adapter in a Client with retry
// middleware.
func newProviderClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (unifiedllm.Completer, func() error, error) {
	adapterOpts := []unifiedllm.AdapterOption{
		unifiedllm.WithModel(cfg.ResolvedModel()),
		unifiedllm.WithLogger(logger),
	}
	if cfg.MaxTokens > 0 {
		adapterOpts = append(adapterOpts, unifiedllm.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		adapterOpts = append(adapterOpts, unifiedllm.WithTemperature(*cfg.Temperature))
	}
	if base := cfg.ResolvedBaseURL(); base != "" {
		adapterOpts = append(adapterOpts, unifiedllm.WithBaseURL(base))
	}
	if cfg.GollmBackend != "" {
		adapterOpts = append(adapterOpts, unifiedllm.WithGollmProvider(cfg.GollmBackend))
	}

	adapter, err := unifiedllm.NewAdapter(ctx, cfg.Provider, cfg.APIKey(), adapterOpts...)
	if err != nil {
		return nil, nil, err
	}

	policy := cfg.RetryPolicy()
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying provider call", "attempt", attempt, "delay", delay, "error", err)
	}
	client := unifiedllm.NewClient(
		unifiedllm.WithProvider(cfg.Provider, adapter),
		unifiedllm.WithDefaultProvider(cfg.Provider),
		unifiedllm.WithMiddleware(unifiedllm.RetryMiddleware(policy)),
	)
	return client, client.Close, nil
}

// startMCPServers spawns each configured server and registers its tools.
// Servers started before a failure are returned so the caller can close
// them.
func startMCPServers(ctx context.Context, servers []config.MCPServerConfig, registry *agentloop.ToolRegistry, logger *slog.Logger) ([]*agentloop.MCPServer, error) {
	var started []*agentloop.MCPServer
	for _, sc := range servers {
		server, err := agentloop.StartMCPServer(ctx, sc.Name, sc.Command, sc.EnvList())
		if err != nil {
			return started, err
		}
		started = append(started, server)

		names, err := agentloop.RegisterMCPTools(ctx, registry, server.Name, server.Caller(), logger)
		if err != nil {
			return started, err
		}
		logger.Info("MCP server ready", "server", server.Name, "tools", len(names))
	}
	return started, nil
}

func resolveWorkDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workdir: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workdir %s is not a directory", abs)
	}
	return abs, nil
}

// buildPrompt appends the requested output location to the task.
func buildPrompt(prompt, outputPath string) string {
	if outputPath == "" {
		return prompt
	}
	return fmt.Sprintf("%s\n\nWrite the final result to %s.", strings.TrimSpace(prompt), outputPath)
}
