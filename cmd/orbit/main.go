package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"orbit/internal/agent"
	"orbit/internal/dispatch"
	"orbit/internal/gateway"
	"orbit/internal/governance"
	"orbit/internal/observability"
	"orbit/internal/registry"
	"orbit/internal/store"
	"orbit/internal/tools"
	"orbit/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	observability.PrintBanner()
	log.SetOutput(observability.NewTermWriter())

	if err := run(*configPath); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

// run keeps all teardown on defer so the transport connection is released
// on every exit path, including startup failures after connect.
func run(configPath string) error {
	// Secrets come from the environment; .env is optional.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	// Connect to the tool server and fetch the catalog. Failure here is
	// fatal: no catalog, no session.
	client, err := registry.Connect(ctx, registry.Options{
		Command:    cfg.MCP.Command,
		Args:       cfg.MCP.Args,
		Env:        mcpEnv(cfg.MCP.Env),
		AsyncTools: cfg.MCP.AsyncTools,
	})
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer client.Close()

	catalog := client.Tools()
	bridge := dispatch.NewBridge(client, catalog,
		time.Duration(cfg.MCP.CallTimeoutSeconds)*time.Second)

	reg := tools.NewRegistry()
	for _, desc := range catalog {
		action, err := tools.NewAction(desc, bridge)
		if err != nil {
			return fmt.Errorf("startup failed: %w", err)
		}
		if err := reg.Register(action); err != nil {
			return fmt.Errorf("startup failed: %w", err)
		}
	}
	if err := registerBuiltins(reg, cfg.Tools); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	model, err := buildModel(cfg)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	systemPrompt := cfg.App.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = agent.LoadSystemPrompt(cfg.App.PromptsDir)
	}
	engine := agent.NewLLMEngine(model, systemPrompt)

	policy, err := governance.FromRules(cfg.Policy.DeniedTools, cfg.Policy.DeniedPatterns)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	var transcript *store.TranscriptStore
	if cfg.Memory.Path != "" {
		transcript, err = store.NewTranscriptStore(cfg.Memory.Path)
		if err != nil {
			return fmt.Errorf("startup failed: %w", err)
		}
		defer transcript.Close()
	}

	logger := observability.NewLogger("logs")
	loop := agent.NewLoop(agent.LoopOptions{
		Engine:     engine,
		Registry:   reg,
		Policy:     policy,
		Logger:     logger,
		Transcript: transcriptOrNil(transcript),
		MaxSteps:   cfg.App.MaxSteps,
	})
	logger.LogSession(loop.SessionID(), "started", map[string]any{
		"server": client.ServerName(),
		"tools":  reg.Len(),
	})
	defer logger.LogSession(loop.SessionID(), "stopped", nil)

	if tgCfg, ok := cfg.GetGateway("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, loop)
		if err != nil {
			return fmt.Errorf("startup failed: %w", err)
		}
		go func() {
			if err := tg.Start(ctx); err != nil {
				log.Printf("telegram gateway stopped: %v", err)
			}
		}()
		defer tg.Stop()
	}

	console := gateway.NewConsoleGateway(gateway.ConsoleOptions{
		Assistant:  loop,
		ServerName: client.ServerName(),
		ToolCount:  reg.Len(),
		SessionID:  loop.SessionID(),
		Transcript: transcript,
	})
	return console.Start(ctx)
}

// mcpEnv layers the config-supplied variables over the process environment.
func mcpEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

func registerBuiltins(reg *tools.Registry, cfg config.ToolsConfig) error {
	if cfg.Search {
		searchTool, err := tools.NewSearchTool()
		if err != nil {
			log.Printf("warning: failed to initialize search tool: %v", err)
		} else if err := reg.Register(searchTool); err != nil {
			return err
		}
	}
	if cfg.Scraper {
		if err := reg.Register(tools.NewScraperTool()); err != nil {
			return err
		}
	}
	if cfg.Browser {
		if err := reg.Register(tools.NewBrowserTool()); err != nil {
			return err
		}
	}
	return nil
}

func buildModel(cfg *config.Config) (llms.Model, error) {
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		return nil, fmt.Errorf("no enabled provider found in config")
	}

	switch pName {
	case "openai", "openrouter", "deepinfra":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s is not supported", pName)
	}
}

func transcriptOrNil(s *store.TranscriptStore) agent.Transcript {
	if s == nil {
		return nil
	}
	return s
}
