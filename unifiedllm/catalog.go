package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	MaxOutput     int      `json:"max_output,omitempty"`
	SupportsTools bool     `json:"supports_tools"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog. The first entry per provider is that
// provider's default.
var Models = []ModelInfo{
	// Anthropic
	{
		ID: "claude-sonnet-4-5", Provider: ProviderAnthropic, DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: 64000, SupportsTools: true,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "claude-opus-4-1", Provider: ProviderAnthropic, DisplayName: "Claude Opus 4.1",
		ContextWindow: 200000, MaxOutput: 32000, SupportsTools: true,
		Aliases: []string{"opus", "claude-opus"},
	},
	{
		ID: "claude-3-5-haiku-latest", Provider: ProviderAnthropic, DisplayName: "Claude Haiku 3.5",
		ContextWindow: 200000, MaxOutput: 8192, SupportsTools: true,
		Aliases: []string{"haiku"},
	},

	// OpenAI
	{
		ID: "gpt-4o", Provider: ProviderOpenAI, DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutput: 16384, SupportsTools: true,
	},
	{
		ID: "gpt-4o-mini", Provider: ProviderOpenAI, DisplayName: "GPT-4o mini",
		ContextWindow: 128000, MaxOutput: 16384, SupportsTools: true,
	},
	{
		ID: "gpt-4.1", Provider: ProviderOpenAI, DisplayName: "GPT-4.1",
		ContextWindow: 1047576, MaxOutput: 32768, SupportsTools: true,
	},

	// Groq
	{
		ID: "meta-llama/llama-4-scout-17b-16e-instruct", Provider: ProviderGroq, DisplayName: "Llama 4 Scout (Groq)",
		ContextWindow: 131072, MaxOutput: 8192, SupportsTools: true,
		Aliases: []string{"llama-4-scout"},
	},
	{
		ID: "llama-3.3-70b-versatile", Provider: ProviderGroq, DisplayName: "Llama 3.3 70B (Groq)",
		ContextWindow: 131072, MaxOutput: 32768, SupportsTools: true,
	},

	// Gemini
	{
		ID: "gemini-2.0-flash", Provider: ProviderGemini, DisplayName: "Gemini 2.0 Flash",
		ContextWindow: 1048576, MaxOutput: 8192, SupportsTools: true,
		Aliases: []string{"gemini-flash"},
	},
	{
		ID: "gemini-2.5-pro", Provider: ProviderGemini, DisplayName: "Gemini 2.5 Pro",
		ContextWindow: 1048576, MaxOutput: 65536, SupportsTools: true,
		Aliases: []string{"gemini-pro"},
	},

	// Ollama
	{
		ID: "llama3.1", Provider: ProviderOllama, DisplayName: "Llama 3.1 (local)",
		ContextWindow: 131072, SupportsTools: true,
	},
	{
		ID: "qwen2.5", Provider: ProviderOllama, DisplayName: "Qwen 2.5 (local)",
		ContextWindow: 32768, SupportsTools: true,
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// DefaultModel returns the default model ID for provider, or "" if the
// catalog has none. gollm defaults to its own openai backend.
func DefaultModel(provider string) string {
	if provider == ProviderGollm {
		return "gpt-4o-mini"
	}
	for i := range Models {
		if Models[i].Provider == provider {
			return Models[i].ID
		}
	}
	return ""
}

// ResolveModel expands an alias into its catalog ID. Unknown names are
// returned unchanged so new models work without a catalog update.
func ResolveModel(name string) string {
	if info := GetModelInfo(name); info != nil {
		return info.ID
	}
	return name
}
