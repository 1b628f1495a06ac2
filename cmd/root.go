package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ciciliostudio/probe/internal/analyzer"
	"github.com/ciciliostudio/probe/internal/browser"
	"github.com/ciciliostudio/probe/internal/chat"
	"github.com/ciciliostudio/probe/internal/config"
	"github.com/ciciliostudio/probe/internal/embeddings"
	"github.com/ciciliostudio/probe/internal/generator"
	"github.com/ciciliostudio/probe/internal/llm"
	"github.com/ciciliostudio/probe/internal/logging"
	"github.com/ciciliostudio/probe/internal/prompts"
	"github.com/ciciliostudio/probe/internal/runner"
	"github.com/ciciliostudio/probe/internal/server"
	"github.com/ciciliostudio/probe/internal/session"
)

var probeConfig *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe - chat-driven web test generation",
	Long: `Probe turns a chat conversation into a web testing pipeline: give it
a URL and it extracts the page, derives test cases, generates executable
test code, runs it, and automatically repairs failing tests.

Running without arguments starts the HTTP and WebSocket server.`,
	RunE: runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().StringP("project", "p", ".", "project directory")
	rootCmd.Flags().String("listen", "", "listen address, overrides config (host:port)")
}

// initConfig sets up logging and loads the configuration.
func initConfig() {
	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	projectDir, _ := rootCmd.PersistentFlags().GetString("project")

	if err := logging.Initialize(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logging: %v\n", err)
	} else {
		logging.RedirectStandardLog()
	}
	if verbose {
		logging.GetLogger().SetLevel(logging.DEBUG)
	}

	loader := config.NewLoader(projectDir)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	probeConfig = cfg
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := probeConfig

	store, err := newSessionStore(cfg)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(llm.Provider(cfg.AI.Provider), cfg.AI.APIKey, llmOptions(cfg))
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	pm, err := prompts.NewManager(cfg.Prompts.Dir)
	if err != nil {
		return fmt.Errorf("failed to load prompt templates: %w", err)
	}
	defer pm.Close()
	if cfg.Prompts.Reload {
		if err := pm.Watch(); err != nil {
			logging.Warn("Prompt template watching disabled: %v", err)
		}
	}

	extractor := browser.NewExtractor(browser.NewFetcher(browser.FetcherOptions{
		Headless:  cfg.Browser.Headless,
		Timeout:   cfg.Browser.Timeout,
		UserAgent: cfg.Browser.UserAgent,
	}))

	gen := generator.New(client, pm)
	an := analyzer.New(client, pm)
	run := runner.New(runner.Options{
		Command: cfg.Runner.Command,
		WorkDir: cfg.Runner.WorkDir,
		Timeout: cfg.Runner.Timeout,
	})

	var embedder chat.Embedder
	if cfg.Embeddings.Enabled {
		openAIKey := ""
		if cfg.AI.Provider == "openai" {
			openAIKey = cfg.AI.APIKey
		}
		vectors, err := embeddings.NewStore(embeddings.Options{
			Path:      cfg.Embeddings.Path,
			ChunkSize: cfg.Embeddings.ChunkSize,
			TopK:      cfg.Embeddings.TopK,
			OpenAIKey: openAIKey,
		})
		if err != nil {
			return fmt.Errorf("failed to open embeddings store: %w", err)
		}
		embedder = vectors
	}

	retry := chat.NewRetryController(run, an, gen, cfg.Retry.MaxAttempts)
	executor := chat.NewExecutor(extractor, gen, embedder, retry)
	orchestrator := chat.NewOrchestrator(store, chat.NewPlanner(), executor)

	addr := cfg.ListenAddr()
	if flagAddr, _ := cmd.Flags().GetString("listen"); flagAddr != "" {
		addr = flagAddr
	}
	srv := server.New(addr, orchestrator, store)

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-done:
		return err
	case sig := <-sigChan:
		logging.Info("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func newSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Sessions.Backend {
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.Sessions.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return store, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

func llmOptions(cfg *config.Config) map[string]interface{} {
	options := make(map[string]interface{})
	for k, v := range cfg.AI.Settings {
		options[k] = v
	}
	if cfg.AI.Model != "" {
		options["model"] = cfg.AI.Model
	}
	if cfg.AI.Endpoint != "" {
		options["base_url"] = cfg.AI.Endpoint
	}
	return options
}
