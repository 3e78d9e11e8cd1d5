package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"twind/internal/channel"
	"twind/internal/channel/mailer"
	"twind/internal/channel/telegram"
	"twind/internal/config"
	"twind/internal/dispatch"
	"twind/internal/docstore"
	"twind/internal/llm"
	"twind/internal/store"
	"twind/internal/subchat"
	"twind/internal/tools"
	"twind/internal/twin"
	"twind/internal/types"
)

var version = "0.1.0"

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger   *zap.Logger
	logLevel zap.AtomicLevel
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "twind",
	Short: "twind - always-on digital twin daemon",
	Long: `twind runs a digital twin of its owner: it listens on chat and email
channels, answers on the owner's behalf in their voice, learns from
corrections, and keeps the owner informed about everything it handled.

Run "twind run" to start the daemon.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		cfg := zap.NewProductionConfig()
		logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		if verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		}
		cfg.Level = logLevel
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd starts the daemon
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the twin daemon",
	Long: `Starts the event dispatch loop: channel adapters feed inbound activity,
tool calls route through the registry, and suspended calls resume when
their subchats finish. SIGINT/SIGTERM triggers an orderly drain.`,
	RunE: runDaemon,
}

// callCmd dispatches a single tool call and prints the result
var callCmd = &cobra.Command{
	Use:   "call [tool] [json-args]",
	Short: "Dispatch one tool call and print its result",
	Long: `Invokes a registered tool directly, waiting for any delegated subchats
to finish. Useful for inspecting handler behavior.

Example:
  twind call personality_model '{"op": "read"}'`,
	Args: cobra.ExactArgs(2),
	RunE: runCall,
}

// modelCmd prints the persona's personality model
var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Print the persona's personality model",
	RunE:  runModel,
}

// conversationsCmd lists the audit ledger
var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List recent handled conversations",
	RunE:  runConversations,
}

// inboxCmd lists pending owner work items
var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List pending owner inbox items",
	RunE:  runInbox,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the twind version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("twind %s\n", version)
	},
}

var listLimit int

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "twind.yaml", "path to config file")
	conversationsCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum records to list")
	inboxCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum items to list")

	rootCmd.AddCommand(runCmd, callCmd, modelCmd, conversationsCmd, inboxCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !verbose {
		if lvl, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
			logLevel.SetLevel(lvl)
		}
	}
	return cfg, nil
}

// buildTwin wires the persona services from the configuration.
func buildTwin(cfg *config.Config) (*twin.Twin, *tools.Registry, *subchat.Engine, []channel.Adapter, *store.Store, error) {
	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	docs := docstore.New(cfg.DocstoreRoot)

	llmTimeout, err := time.ParseDuration(cfg.LLM.Timeout)
	if err != nil {
		st.Close()
		return nil, nil, nil, nil, nil, fmt.Errorf("invalid llm timeout %q: %w", cfg.LLM.Timeout, err)
	}
	client := llm.New(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: llmTimeout,
	}, logger)

	engine := subchat.NewEngine(client, subchat.DefaultConfig(), logger)

	var adapters []channel.Adapter
	var targets []twin.Target
	if cfg.Telegram.BotToken != "" {
		tg := telegram.New(cfg.Telegram.BotToken, logger,
			telegram.WithListenMode(cfg.Telegram.ListenMode))
		adapters = append(adapters, tg)
		if cfg.Owner.TelegramChatID != "" {
			targets = append(targets, twin.Target{Adapter: tg, To: cfg.Owner.TelegramChatID})
		}
	}
	if cfg.Email.SMTPHost != "" && cfg.Owner.Email != "" {
		mail := mailer.New(mailer.Config{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}, logger)
		adapters = append(adapters, mail)
		targets = append(targets, twin.Target{Adapter: mail, To: cfg.Owner.Email})
	}

	tw := twin.New(twin.Config{
		Persona:             cfg.Persona,
		ConfidenceThreshold: cfg.Behavior.ConfidenceThreshold,
	}, st, docs, engine, targets, logger)
	reg := tools.NewRegistry(logger)
	if err := tw.RegisterTools(reg); err != nil {
		st.Close()
		return nil, nil, nil, nil, nil, err
	}

	return tw, reg, engine, adapters, st, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tw, reg, engine, adapters, st, err := buildTwin(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot-reload only touches the log level; structural changes need a
	// restart.
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		if lvl, perr := zapcore.ParseLevel(next.Logging.Level); perr == nil {
			logLevel.SetLevel(lvl)
		}
	}, logger)
	if err == nil {
		go func() { _ = watcher.Run(ctx) }()
	} else {
		logger.Warn("config watch unavailable", zap.Error(err))
	}

	d := dispatch.New(reg, engine, tw, adapters, []io.Closer{st}, dispatch.DefaultConfig(), logger)

	logger.Info("twin daemon starting",
		zap.String("version", version),
		zap.String("persona", cfg.Persona),
		zap.Int("channels", len(adapters)))

	return d.Run(ctx)
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tw, reg, engine, adapters, st, err := buildTwin(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	defer func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}()

	var callArgs map[string]any
	if err := json.Unmarshal([]byte(args[1]), &callArgs); err != nil {
		return fmt.Errorf("invalid json args: %w", err)
	}

	ctx := cmd.Context()
	outcome, err := reg.Dispatch(ctx, types.ToolCall{
		ID:   "cli-" + args[0],
		Name: args[0],
		Args: callArgs,
	})
	if err != nil {
		return err
	}
	if !outcome.Pending() {
		fmt.Println(outcome.Result)
		return nil
	}

	fmt.Fprintf(os.Stderr, "waiting for %d subchat(s)...\n", len(outcome.Subchats))
	res := <-engine.Resumptions()
	tw.OnResume(res.CallID)
	for _, r := range res.Results {
		fmt.Println(r)
	}
	return nil
}

func runModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	model, err := st.ReadModel(cfg.Persona)
	if err != nil {
		return err
	}
	doc, err := model.JSON()
	if err != nil {
		return err
	}
	fmt.Println(doc)
	return nil
}

func runConversations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListConversations(cfg.Persona, listLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no conversations recorded")
		return nil
	}
	for _, rec := range recs {
		flag := " "
		if rec.NeedsApproval {
			flag = "!"
		}
		fmt.Printf("%s %s  %-20s  %s\n", flag,
			rec.Timestamp.Format(time.RFC3339), rec.Requester, rec.Summary)
	}
	return nil
}

func runInbox(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	items, err := st.ListInbox(cfg.Persona, listLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("inbox empty")
		return nil
	}
	for _, item := range items {
		fmt.Printf("#%d  %s  %s\n", item.ID, item.CreatedAt.Format(time.RFC3339), item.Title)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
