// Command nexus runs the adaptive assistant from the terminal or over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nexus-ai/nexus-go/pkg/core"
	"github.com/nexus-ai/nexus-go/pkg/llm/ollama"
	"github.com/nexus-ai/nexus-go/pkg/server"
)

const usage = `Usage: nexus <command> [flags]

Commands:
  chat     interactive conversation with feedback
  ask      answer a single question and exit
  web      serve the HTTP API
  models   list models installed on the ollama host
  stats    print learning statistics as JSON

Run "nexus <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "chat":
		err = runChat(ctx, args)
	case "ask":
		err = runAsk(ctx, args)
	case "web":
		err = runWeb(ctx, args)
	case "models":
		err = runModels(ctx, args)
	case "stats":
		err = runStats(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "nexus: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	logLevel   string
	provider   string
	model      string
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", "", "Path to a JSON or YAML config file (uses env vars by default)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	fs.StringVar(&c.provider, "provider", "", "Model provider (overrides MODEL_PROVIDER)")
	fs.StringVar(&c.model, "model", "", "Model name (overrides config)")
	return fs, c
}

// load resolves the configuration and logger from flags.
func (c *commonFlags) load() (*core.Config, *slog.Logger, error) {
	var (
		cfg *core.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = core.LoadConfigFromFile(c.configPath)
	} else {
		cfg, err = core.LoadConfigFromEnv()
	}
	if err != nil {
		return nil, nil, err
	}

	if c.provider != "" {
		cfg.LLM.Provider = c.provider
	}
	if c.model != "" {
		cfg.LLM.Model = c.model
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	logger := core.NewLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runChat(ctx context.Context, args []string) error {
	fs, common := newFlagSet("chat")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := common.load()
	if err != nil {
		return err
	}

	assistant, err := core.NewAssistant(ctx, cfg, core.WithLogger(logger))
	if err != nil {
		return err
	}
	defer assistant.Close()

	return repl(ctx, assistant, os.Stdin, os.Stdout)
}

func runAsk(ctx context.Context, args []string) error {
	fs, common := newFlagSet("ask")
	temperature := fs.Float64("temperature", -1, "Sampling temperature for this question (overrides config)")
	maxTokens := fs.Int("max-tokens", 0, "Maximum tokens for this answer (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("ask: a question is required")
	}

	cfg, logger, err := common.load()
	if err != nil {
		return err
	}
	assistant, err := core.NewAssistant(ctx, cfg, core.WithLogger(logger))
	if err != nil {
		return err
	}
	defer assistant.Close()

	var opts []core.AskOption
	if *temperature >= 0 {
		opts = append(opts, core.WithTemperature(*temperature))
	}
	if *maxTokens > 0 {
		opts = append(opts, core.WithMaxTokens(*maxTokens))
	}

	reply, err := assistant.Ask(ctx, question, opts...)
	if err != nil {
		return err
	}
	fmt.Println(reply.Content)
	if reply.Failed {
		return errors.New("ask: provider call failed")
	}
	return nil
}

func runWeb(ctx context.Context, args []string) error {
	fs, common := newFlagSet("web")
	host := fs.String("host", "", "Listen host (overrides WEB_HOST)")
	port := fs.Int("port", 0, "Listen port (overrides WEB_PORT)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := common.load()
	if err != nil {
		return err
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := core.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := server.New(server.Config{
		Store:       store,
		Logger:      logger,
		SessionTTL:  time.Duration(cfg.Server.SessionTTL) * time.Minute,
		MaxSessions: cfg.Server.MaxSessions,
		Factory: func(ctx context.Context) (*core.Assistant, error) {
			return core.NewAssistant(ctx, cfg, core.WithStore(store), core.WithLogger(logger))
		},
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, cfg.Server.Addr())
}

func runModels(ctx context.Context, args []string) error {
	fs, common := newFlagSet("models")
	host := fs.String("host", "", "Ollama host (overrides OLLAMA_HOST)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := common.load()
	if err != nil {
		return err
	}

	baseURL := cfg.LLM.BaseURL
	if cfg.LLM.Provider != "ollama" {
		baseURL = ""
	}
	if *host != "" {
		baseURL = *host
	}

	client, err := ollama.NewClient(&ollama.Config{BaseURL: baseURL, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("No models installed")
		return nil
	}
	for _, m := range models {
		fmt.Println(m)
	}
	return nil
}

func runStats(ctx context.Context, args []string) error {
	fs, common := newFlagSet("stats")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, _, err := common.load()
	if err != nil {
		return err
	}

	store, err := core.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Statistics(ctx)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, stats)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
