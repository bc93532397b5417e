package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/martinemde/sfagent/internal/config"
)

// cliOptions holds parsed flags. Only flags the user actually set
// override configuration.
type cliOptions struct {
	prompt       string
	model        string
	provider     string
	configPath   string
	outputPath   string
	workDir      string
	logLevel     string
	logFormat    string
	computeLimit int
	mcpCommands  stringList

	set map[string]bool
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ", ") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// flag names that share a destination; the value is the canonical name.
var flagAliases = map[string]string{
	"p": "prompt",
	"c": "compute-limit",
	"m": "model",
	"o": "output-file-path",
}

// parseArgs parses args on a private FlagSet so run stays safe to call
// from parallel tests.
func parseArgs(args []string, stderr io.Writer) (*cliOptions, error) {
	o := &cliOptions{set: make(map[string]bool)}
	fs := flag.NewFlagSet("sfagent", flag.ContinueOnError)
	fs.SetOutput(stderr)

	for _, name := range []string{"p", "prompt"} {
		fs.StringVar(&o.prompt, name, "", "task for the agent (required)")
	}
	for _, name := range []string{"c", "compute-limit"} {
		fs.IntVar(&o.computeLimit, name, 0, "maximum provider calls before giving up (default 10)")
	}
	for _, name := range []string{"m", "model"} {
		fs.StringVar(&o.model, name, "", "model ID or alias")
	}
	for _, name := range []string{"o", "output-file-path"} {
		fs.StringVar(&o.outputPath, name, "", "file the agent should write its result to")
	}
	fs.StringVar(&o.provider, "provider", "", "provider: anthropic, openai, groq, gemini, ollama, gollm")
	fs.StringVar(&o.configPath, "config", "", "config file path")
	fs.StringVar(&o.workDir, "workdir", "", "working directory for tools (default current directory)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	fs.StringVar(&o.logFormat, "log-format", "", "log format: text or json")
	fs.Var(&o.mcpCommands, "mcp-command", "stdio MCP server command line (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if canonical, ok := flagAliases[name]; ok {
			name = canonical
		}
		o.set[name] = true
	})

	if strings.TrimSpace(o.prompt) == "" {
		return nil, errors.New("a prompt is required (-p)")
	}
	if o.set["compute-limit"] && o.computeLimit < 1 {
		return nil, fmt.Errorf("compute limit must be at least 1, got %d", o.computeLimit)
	}
	return o, nil
}

// apply overrides cfg with the flags that were set.
func (o *cliOptions) apply(cfg *config.Config) {
	if o.set["provider"] {
		cfg.Provider = o.provider
	}
	if o.set["model"] {
		cfg.Model = o.model
	}
	if o.set["compute-limit"] {
		cfg.MaxIterations = o.computeLimit
	}
	if o.set["workdir"] {
		cfg.WorkDir = o.workDir
	}
	if o.set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if o.set["log-format"] {
		cfg.LogFormat = o.logFormat
	}
	for _, cmd := range o.mcpCommands {
		cfg.MCPServers = append(cfg.MCPServers, config.MCPServerConfig{Command: cmd})
	}
}
