package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nugget/envoy/internal/agent"
	"github.com/nugget/envoy/internal/config"
	"github.com/nugget/envoy/internal/llm"
	"github.com/nugget/envoy/internal/notify"
	"github.com/nugget/envoy/internal/persona"
	"github.com/nugget/envoy/internal/prompts"
	"github.com/nugget/envoy/internal/tools"
)

// errMissingKey is returned when a provider in use has no API key.
var errMissingKey = errors.New("missing API key")

// app is the assembled reply pipeline shared by serve and ask.
type app struct {
	persona   persona.Context
	responder *agent.Responder
	providers map[string]llm.Client
}

// newApp wires persona, notifier, tools, providers and the agent into a
// responder. Configuration is read once here and handed down.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	pc := loadPersona(ctx, cfg, logger)

	notifier := notify.New(cfg.Notify, logger)

	registry, err := tools.NewDefaultRegistry(pc.Name, notifier, logger)
	if err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	client, providers, err := createLLMClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	loop := agent.NewLoop(client, registry, cfg.Models.Default, cfg.Models.MaxToolRounds, logger)

	// A nil Judge disables evaluation; keep the interface nil rather
	// than holding a nil *Evaluator.
	var judge agent.Judge
	if cfg.Evaluation.IsEnabled() {
		ev, err := agent.NewEvaluator(client, cfg.Models.EvaluatorModel(),
			prompts.EvaluatorSystemPrompt(pc.Name, pc.Summary, pc.Profile), logger)
		if err != nil {
			return nil, fmt.Errorf("create evaluator: %w", err)
		}
		judge = ev
	}

	return &app{
		persona:   pc,
		responder: agent.NewResponder(loop, judge, systemPrompt(pc), cfg.Models.MaxAttempts, logger),
		providers: providers,
	}, nil
}

func loadPersona(ctx context.Context, cfg *config.Config, logger *slog.Logger) persona.Context {
	return persona.Load(ctx, cfg.Persona, logger)
}

func systemPrompt(pc persona.Context) string {
	return prompts.SystemPrompt(pc.Name, pc.Summary, pc.Profile)
}

// createLLMClient builds a multi-provider LLM client from the
// configuration. Only providers referenced by models.provider or
// models.routes are constructed; each routed model is mapped to its
// provider and everything else goes to the fallback provider. The
// per-provider clients are returned as well for health checks.
func createLLMClient(cfg *config.Config, logger *slog.Logger) (llm.Client, map[string]llm.Client, error) {
	clients := make(map[string]llm.Client)

	used := cfg.ProvidersInUse()
	names := make([]string, 0, len(used))
	for name := range used {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch name {
		case config.ProviderOpenAI:
			if cfg.OpenAI.APIKey == "" {
				return nil, nil, fmt.Errorf("openai: %w (set openai.api_key or OPENAI_API_KEY)", errMissingKey)
			}
			clients[name] = llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger)
		case config.ProviderAnthropic:
			if cfg.Anthropic.APIKey == "" {
				return nil, nil, fmt.Errorf("anthropic: %w (set anthropic.api_key or ANTHROPIC_API_KEY)", errMissingKey)
			}
			clients[name] = llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
		case config.ProviderOllama:
			clients[name] = llm.NewOllamaClient(cfg.Ollama.URL, logger)
		}
		logger.Debug("LLM provider configured", "provider", name)
	}

	router := llm.NewRouter(cfg.Models.Provider)
	for name, client := range clients {
		router.Register(name, client)
	}
	for model, provider := range cfg.Models.Routes {
		router.Route(model, provider)
	}

	logger.Info("LLM client initialized",
		"default_model", cfg.Models.Default,
		"default_provider", cfg.Models.Provider,
		"routes", len(cfg.Models.Routes),
	)
	return router, clients, nil
}
