package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

// DefaultDescription opens the system prompt when none is configured.
const DefaultDescription = "You are an autonomous agent. You complete the user's task by calling the tools available to you."

// DefaultInstructions are the working rules given to the model when none
// are configured.
var DefaultInstructions = []string{
	"Carefully analyze the user's request.",
	"Choose the tool that best fits the next step and call it with arguments that match its schema.",
	"Read tool results before deciding the next step. If a tool returns an error, adjust your approach instead of repeating the same call.",
	"If the request requires multiple steps, perform them one after another.",
}

// PromptOptions collects the parts of the system prompt.
type PromptOptions struct {
	Description  string
	Instructions []string
	FinishTool   string
	Provider     string
	Model        string
	Env          ExecutionEnvironment
	// ProjectDocs disables AGENTS.md discovery when false.
	ProjectDocs bool
}

// BuildSystemPrompt assembles the description, numbered instructions, the
// finish-tool rule, the environment block and any project instructions.
func BuildSystemPrompt(opts PromptOptions) string {
	description := strings.TrimSpace(opts.Description)
	if description == "" {
		description = DefaultDescription
	}
	instructions := opts.Instructions
	if len(instructions) == 0 {
		instructions = DefaultInstructions
	}

	var sb strings.Builder
	sb.WriteString(description)
	sb.WriteString("\n\n# Instructions\n\n")
	for i, line := range instructions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.TrimSpace(line))
	}
	if opts.FinishTool != "" {
		fmt.Fprintf(&sb, "%d. When the task is done, call the %s tool with a short summary of what you did. Do not call it before the work is finished.\n",
			len(instructions)+1, opts.FinishTool)
	}

	if opts.Env != nil {
		sb.WriteString("\n")
		sb.WriteString(BuildEnvironmentContext(opts.Env, opts.Model))
		if opts.ProjectDocs {
			if docs := DiscoverProjectDocs(opts.Env.WorkingDirectory(), opts.Provider); docs != "" {
				sb.WriteString("\n\n# Project Instructions\n\n")
				sb.WriteString(docs)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// BuildEnvironmentContext renders the working directory, git state, platform
// and date as an <environment> block.
func BuildEnvironmentContext(env ExecutionEnvironment, model string) string {
	workingDir := env.WorkingDirectory()
	gitBranch := ""
	isGitRepo := gitRoot(workingDir) != ""
	if isGitRepo {
		gitBranch = getGitBranch(workingDir)
	}

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isGitRepo)
	if gitBranch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", gitBranch)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "OS version: %s\n", env.OSVersion())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads AGENTS.md, plus the provider's own instruction
// file, from every directory between the git root and workingDir. The
// combined text is capped at 32KB.
func DiscoverProjectDocs(workingDir string, provider string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	names := []string{"AGENTS.md"}
	switch provider {
	case "anthropic":
		names = append(names, "CLAUDE.md")
	case "gemini":
		names = append(names, "GEMINI.md")
	}

	var docs []string
	total := 0
	for _, dir := range collectPathHierarchy(root, workingDir) {
		for _, name := range names {
			content, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				continue
			}
			remaining := maxProjectDocBytes - total
			if remaining <= 0 {
				docs = append(docs, "[Project instructions truncated at 32KB]")
				return strings.Join(docs, "\n\n---\n\n")
			}
			text := string(content)
			if len(text) > remaining {
				text = text[:runeStart(text, remaining)] + "\n[Project instructions truncated at 32KB]"
			}
			docs = append(docs, fmt.Sprintf("## %s (from %s)\n\n%s", name, dir, text))
			total += len(text)
		}
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// collectPathHierarchy returns directories from root down to target.
func collectPathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	dirs := []string{root}
	if root == target {
		return dirs
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func gitRoot(dir string) string {
	return runGit(dir, "rev-parse", "--show-toplevel")
}

func getGitBranch(dir string) string {
	return runGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
}

func runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
