// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kadirpekel/hector/pkg/agentctx"
	"github.com/kadirpekel/hector/pkg/config"
	"github.com/kadirpekel/hector/pkg/embedder"
	"github.com/kadirpekel/hector/pkg/embedders"
	"github.com/kadirpekel/hector/pkg/eventbus"
	"github.com/kadirpekel/hector/pkg/logger"
	"github.com/kadirpekel/hector/pkg/memorypipeline"
	"github.com/kadirpekel/hector/pkg/model"
	"github.com/kadirpekel/hector/pkg/model/anthropic"
	"github.com/kadirpekel/hector/pkg/model/gemini"
	"github.com/kadirpekel/hector/pkg/model/ollama"
	"github.com/kadirpekel/hector/pkg/model/openai"
	"github.com/kadirpekel/hector/pkg/orchestrator"
	"github.com/kadirpekel/hector/pkg/providerchain"
	"github.com/kadirpekel/hector/pkg/ratelimit"
	"github.com/kadirpekel/hector/pkg/repo"
	"github.com/kadirpekel/hector/pkg/requestctx"
	"github.com/kadirpekel/hector/pkg/vector"
)

// FleetCmd starts an interactive chat session against a bot that is
// orchestrated through the recursive sub-agent runtime: LLM provider
// fallback, bounded spawn depth, a shared per-request token budget, and
// long-term memory recall/extraction all run underneath a single REPL.
type FleetCmd struct {
	Bot string `arg:"" help:"Agent name to chat with, as defined under agents: in the config."`
}

func (c *FleetCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := cli.Config
	if configPath == "" {
		return fmt.Errorf("--config is required for the fleet command")
	}

	_ = config.LoadDotEnvForConfig(configPath)
	cfg, loader, err := config.LoadConfigFile(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer loader.Close()

	agentCfg, ok := cfg.Agents[c.Bot]
	if !ok {
		return fmt.Errorf("agent %q not found in configuration", c.Bot)
	}

	f, err := buildFleet(cfg, agentCfg)
	if err != nil {
		return fmt.Errorf("failed to assemble fleet: %w", err)
	}
	defer f.vectorProvider.Close()
	defer f.dbPool.Close()

	return f.chat(ctx, c.Bot, agentCfg)
}

// fleet bundles the long-lived components a bot's orchestration loop
// needs on every turn. One fleet is built per process; bots sharing a
// config share its provider chain, embedder, and stores.
type fleet struct {
	provider       model.LLM
	vectorProvider vector.Provider
	dbPool         *config.DBPool
	pipeline       *memorypipeline.Pipeline
	orch           *orchestrator.Orchestrator
	bus            *eventbus.Bus
	logger         *slog.Logger
	limiter        ratelimit.RateLimiter
	limitScope     ratelimit.Scope

	budgetTotal int
	warningFrac float64
}

func buildFleet(cfg *config.Config, agentCfg *config.AgentConfig) (*fleet, error) {
	log := logger.GetLogger()

	// Shared pool so the memory repo and the rate limiter's SQL backend
	// don't each open their own connection to the same database.
	dbPool := config.NewDBPool()

	chain, err := buildProviderChain(cfg, agentCfg)
	if err != nil {
		return nil, err
	}

	emb, err := buildEmbedder(cfg, agentCfg)
	if err != nil {
		return nil, err
	}

	vsProvider, vs, err := buildVectorStore(cfg, agentCfg)
	if err != nil {
		return nil, err
	}

	memRepo, err := buildMemoryRepo(cfg, agentCfg, dbPool)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.NewRateLimiterFromConfig(cfg, dbPool)
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}

	orchCfg := orchestrator.Config{
		MaxDepth:           cfg.Orchestrator.MaxDepth,
		SubAgentRetryCount: cfg.Orchestrator.SubAgentRetryCount,
	}

	bus := eventbus.New(cfg.Orchestrator.EventBusCapacity)

	pipelineCfg := memorypipeline.Config{
		TopK:          cfg.Orchestrator.RecallTopK,
		MinSimilarity: float32(cfg.Orchestrator.RecallMinSimilarity),
	}

	return &fleet{
		provider:       chain,
		vectorProvider: vsProvider,
		dbPool:         dbPool,
		pipeline:       memorypipeline.New(pipelineCfg, emb, vs, memRepo, chain, bus, log),
		orch:           orchestrator.New(orchCfg, log),
		bus:            bus,
		logger:         log,
		limiter:        limiter,
		limitScope:     ratelimit.ScopeFromConfig(cfg.RateLimiting),
		budgetTotal:    cfg.Orchestrator.RequestBudgetTotal,
		warningFrac:    cfg.Orchestrator.BudgetWarningFraction,
	}, nil
}

// buildProviderChain turns the bot's configured LLM reference (or inline
// definition) into a providerchain.Chain wrapped as a single model.LLM,
// with every remaining configured LLM entry added as a fallback behind it.
// The fallbacks are collected from a map, so their relative order is not
// defined and may differ between runs.
func buildProviderChain(cfg *config.Config, agentCfg *config.AgentConfig) (*providerchain.LLM, error) {
	primaryName := agentCfg.LLM
	llmCfgs := map[string]*config.LLMConfig{}
	for name, llmCfg := range cfg.LLMs {
		llmCfgs[name] = llmCfg
	}
	if agentCfg.LLMInline != nil {
		primaryName = "inline:" + agentCfg.Name
		llmCfgs[primaryName] = agentCfg.LLMInline
	}
	if primaryName == "" {
		return nil, fmt.Errorf("agent %q has no llm reference or inline llm configured", agentCfg.Name)
	}

	order := []string{primaryName}
	for name := range llmCfgs {
		if name != primaryName {
			order = append(order, name)
		}
	}

	entries := make([]providerchain.Entry, 0, len(order))
	for i, name := range order {
		llmCfg, ok := llmCfgs[name]
		if !ok {
			return nil, fmt.Errorf("llm %q referenced by agent %q not found", name, agentCfg.Name)
		}
		provider, err := newModelProvider(name, llmCfg)
		if err != nil {
			return nil, fmt.Errorf("llm %q: %w", name, err)
		}
		entries = append(entries, providerchain.Entry{Name: name, Provider: provider, Priority: i})
	}

	chainCfg := providerchain.Config{
		FailThreshold:     cfg.Orchestrator.BreakerFailThreshold,
		CoolDown:          time.Duration(cfg.Orchestrator.BreakerCoolDownMS) * time.Millisecond,
		RateLimitQueueMax: time.Duration(cfg.Orchestrator.RateLimitQueueMaxMS) * time.Millisecond,
	}
	chain := providerchain.New(entries, chainCfg)
	return providerchain.NewLLM(chain, agentCfg.Name), nil
}

func newModelProvider(name string, cfg *config.LLMConfig) (model.LLM, error) {
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case config.LLMProviderAnthropic:
		anthropicCfg := anthropic.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}
		if cfg.Thinking != nil && cfg.Thinking.Enabled != nil && *cfg.Thinking.Enabled {
			anthropicCfg.EnableThinking = true
			anthropicCfg.ThinkingBudget = cfg.Thinking.BudgetTokens
		}
		return anthropic.New(anthropicCfg)
	case config.LLMProviderGemini:
		temp := 0.7
		if cfg.Temperature != nil {
			temp = *cfg.Temperature
		}
		return gemini.New(gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: temp,
		})
	case config.LLMProviderOllama:
		return ollama.New(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q for %q", cfg.Provider, name)
	}
}

// buildEmbedder resolves the bot's embedder reference (or inline
// definition) to a concrete legacy pkg/embedders provider, then adapts it
// to the context-aware embedder.Embedder interface the memory pipeline
// consumes.
func buildEmbedder(cfg *config.Config, agentCfg *config.AgentConfig) (embedder.Embedder, error) {
	embCfg := agentCfg.EmbedderInline
	if embCfg == nil {
		name := agentCfg.Embedder
		if name == "" {
			name = cfg.Defaults.Embedder
		}
		if name == "" {
			embCfg = &config.EmbedderConfig{}
		} else {
			var ok bool
			embCfg, ok = cfg.Embedders[name]
			if !ok {
				return nil, fmt.Errorf("embedder %q referenced by agent %q not found", name, agentCfg.Name)
			}
		}
	}
	embCfg.SetDefaults()

	providerCfg := &config.EmbedderProviderConfig{
		Type:   embCfg.Provider,
		Model:  embCfg.Model,
		Host:   embCfg.BaseURL,
		APIKey: embCfg.APIKey,
	}

	switch embCfg.Provider {
	case "openai":
		prov, err := embedders.NewOpenAIEmbedderFromConfig(providerCfg)
		if err != nil {
			return nil, err
		}
		return embedder.FromLegacy(prov), nil
	case "cohere":
		prov, err := embedders.NewCohereEmbedderFromConfig(providerCfg)
		if err != nil {
			return nil, err
		}
		return embedder.FromLegacy(prov), nil
	default:
		prov, err := embedders.NewOllamaEmbedderFromConfig(providerCfg)
		if err != nil {
			return nil, err
		}
		return embedder.FromLegacy(prov), nil
	}
}

// buildVectorStore resolves the bot's vector store reference to a
// vector.Provider and wraps it with the bot-scoped collection convention
// and minimum-similarity floor the memory pipeline expects. It returns
// the raw provider too, since only the provider (not the wrapping
// repo.VectorStore) exposes Close.
func buildVectorStore(cfg *config.Config, agentCfg *config.AgentConfig) (vector.Provider, *repo.ProviderVectorStore, error) {
	vsCfg := agentCfg.VectorStoreInline
	if vsCfg == nil {
		name := agentCfg.VectorStore
		if name == "" {
			name = cfg.Defaults.VectorStore
		}
		if name != "" {
			var ok bool
			vsCfg, ok = cfg.VectorStores[name]
			if !ok {
				return nil, nil, fmt.Errorf("vector store %q referenced by agent %q not found", name, agentCfg.Name)
			}
		}
	}

	providerCfg := &vector.ProviderConfig{}
	if vsCfg != nil {
		switch vsCfg.Type {
		case "qdrant":
			providerCfg.Type = vector.ProviderQdrant
			providerCfg.Qdrant = &vector.QdrantConfig{
				Host:   vsCfg.Host,
				Port:   vsCfg.Port,
				APIKey: vsCfg.APIKey,
			}
			if vsCfg.EnableTLS != nil {
				providerCfg.Qdrant.UseTLS = *vsCfg.EnableTLS
			}
		default:
			// Only qdrant is mapped here; any other type (pinecone,
			// weaviate, milvus, ...) falls back to the embedded
			// chromem store rather than failing bot startup.
			providerCfg.Type = vector.ProviderChromem
			providerCfg.Chromem = &vector.ChromemConfig{
				PersistPath: vsCfg.PersistPath,
				Compress:    vsCfg.Compress,
			}
		}
	}

	providerCfg.SetDefaults()
	provider, err := vector.NewProvider(providerCfg)
	if err != nil {
		return nil, nil, err
	}
	return provider, repo.NewProviderVectorStore(provider, vectorDimensionFor(agentCfg)), nil
}

func vectorDimensionFor(agentCfg *config.AgentConfig) int {
	if agentCfg.EmbedderInline != nil && agentCfg.EmbedderInline.Provider == "openai" {
		return 1536
	}
	return 768
}

// buildMemoryRepo resolves the bot's session-store reference to a SQL
// database connection and wraps it as the durable memory repository. A
// bot with no session store gets an in-process repository instead, so
// chat still works without persistence configured.
func buildMemoryRepo(cfg *config.Config, agentCfg *config.AgentConfig, pool *config.DBPool) (repo.MemoryRepo, error) {
	name := agentCfg.SessionStore
	if name == "" {
		name = cfg.Defaults.SessionStore
	}
	if name == "" {
		return repo.NewInMemoryRepo(), nil
	}
	dbCfg, ok := cfg.Databases[name]
	if !ok {
		return nil, fmt.Errorf("database %q referenced by agent %q not found", name, agentCfg.Name)
	}
	db, err := pool.Get(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database %q: %w", name, err)
	}
	sqlRepo, err := repo.NewSQLRepo(db, dbCfg.Dialect())
	if err != nil {
		return nil, fmt.Errorf("init sql repo for %q: %w", name, err)
	}
	return sqlRepo, nil
}

// chat drives the interactive REPL: each turn recalls relevant memories
// into the agent context, runs the orchestrator (which may spawn and
// synthesize sub-agents under the hood), prints the final response as it
// streams, and extracts any new facts worth remembering.
func (f *fleet) chat(ctx context.Context, botID string, agentCfg *config.AgentConfig) error {
	reader := bufio.NewReader(os.Stdin)

	temperature := 0.7
	if agentCfg.LLMInline != nil && agentCfg.LLMInline.Temperature != nil {
		temperature = *agentCfg.LLMInline.Temperature
	}

	ac, err := agentctx.New(
		agentctx.Config{
			BotID:           botID,
			DisplayName:     agentCfg.GetDisplayName(),
			Slug:            botID,
			Model:           agentCfg.LLM,
			Temperature:     temperature,
			MaxOutputTokens: 4096,
		},
		agentCfg.Description, "", "", nil, 128000, "",
	)
	if err != nil {
		return fmt.Errorf("failed to init agent context: %w", err)
	}

	sub := f.bus.Subscribe()
	defer sub.Close()
	go func() {
		for ev := range sub.Events() {
			if ev.Type == eventbus.TypeAgentTextDelta && ev.AgentTextDelta != nil {
				fmt.Print(ev.AgentTextDelta.Text)
			}
		}
	}()

	fmt.Printf("\n💬 Starting chat with %s (Fleet Mode)\n", botID)
	fmt.Println("Type your messages below. Commands:")
	fmt.Println("  /quit or /exit - End chat session")
	fmt.Println()

	for {
		fmt.Print("You: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			fmt.Println("\n👋 Chat session ended")
			return nil
		}

		if f.limiter != nil {
			check, err := f.limiter.Check(ctx, f.limitScope, botID)
			if err != nil {
				f.logger.Warn("rate limit check failed", "error", err)
			} else if !check.Allowed {
				fmt.Printf("⏳ Rate limit reached: %s\n\n", check.Reason)
				continue
			}
		}

		if err := f.pipeline.Recall(ctx, botID, input, ac); err != nil {
			f.logger.Warn("memory recall failed", "error", err)
		}

		ac.AddUserMessage(input)
		rc := requestctx.NewWithWarningFraction(f.budgetTotal, f.warningFrac)

		fmt.Printf("\n%s: ", botID)
		result, err := f.orch.Execute(ctx, f.provider, ac, input, rc, f.bus)
		if err != nil {
			fmt.Printf("❌ Error: %v\n\n", err)
			continue
		}
		fmt.Println()

		if f.limiter != nil {
			if err := f.limiter.Record(ctx, f.limitScope, botID, int64(result.TotalTokensUsed), 1); err != nil {
				f.logger.Warn("rate limit record failed", "error", err)
			}
		}

		ac.AddAssistantMessage(result.FinalResponse)

		turn := []memorypipeline.Message{
			{Role: "user", Content: input},
			{Role: "assistant", Content: result.FinalResponse},
		}
		if err := f.pipeline.Extract(ctx, botID, result, turn); err != nil {
			f.logger.Warn("memory extraction failed", "error", err)
		}
	}
}
