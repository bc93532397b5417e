package unifiedllm

import "testing"

func TestGetModelInfo(t *testing.T) {
	info := GetModelInfo("claude-sonnet-4-5")
	if info == nil {
		t.Fatal("expected to find claude-sonnet-4-5")
	}
	if info.Provider != ProviderAnthropic {
		t.Errorf("expected provider %q, got %q", ProviderAnthropic, info.Provider)
	}
	if !info.SupportsTools {
		t.Error("expected supports_tools = true")
	}

	info = GetModelInfo("opus")
	if info == nil {
		t.Fatal("expected to find model by alias 'opus'")
	}
	if info.ID != "claude-opus-4-1" {
		t.Errorf("expected id %q, got %q", "claude-opus-4-1", info.ID)
	}

	if info := GetModelInfo("nonexistent-model"); info != nil {
		t.Errorf("expected nil for unknown model, got %v", info)
	}
}

func TestListModels(t *testing.T) {
	all := ListModels("")
	if len(all) != len(Models) {
		t.Errorf("expected %d models, got %d", len(Models), len(all))
	}

	for _, provider := range []string{ProviderAnthropic, ProviderOpenAI, ProviderGroq, ProviderGemini, ProviderOllama} {
		models := ListModels(provider)
		if len(models) == 0 {
			t.Errorf("expected catalog entries for %s", provider)
		}
		for _, m := range models {
			if m.Provider != provider {
				t.Errorf("ListModels(%q) returned %s model %s", provider, m.Provider, m.ID)
			}
		}
	}

	if got := ListModels("unknown"); len(got) != 0 {
		t.Errorf("expected no models for unknown provider, got %d", len(got))
	}
}

func TestDefaultModel(t *testing.T) {
	tests := map[string]string{
		ProviderAnthropic: "claude-sonnet-4-5",
		ProviderOpenAI:    "gpt-4o",
		ProviderGroq:      "meta-llama/llama-4-scout-17b-16e-instruct",
		ProviderGemini:    "gemini-2.0-flash",
		ProviderOllama:    "llama3.1",
		ProviderGollm:     "gpt-4o-mini",
		"unknown":         "",
	}
	for provider, want := range tests {
		if got := DefaultModel(provider); got != want {
			t.Errorf("DefaultModel(%q) = %q, want %q", provider, got, want)
		}
	}
}

func TestResolveModel(t *testing.T) {
	if got := ResolveModel("sonnet"); got != "claude-sonnet-4-5" {
		t.Errorf("expected alias to resolve, got %q", got)
	}
	if got := ResolveModel("my-finetune"); got != "my-finetune" {
		t.Errorf("expected unknown model unchanged, got %q", got)
	}
}

func TestCatalogIDsUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Models {
		if seen[m.ID] {
			t.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
		for _, alias := range m.Aliases {
			if seen[alias] {
				t.Errorf("alias %q collides with another entry", alias)
			}
			seen[alias] = true
		}
	}
}
