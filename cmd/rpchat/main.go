// Command rpchat runs roleplay chats against a chat-completion provider,
// assembling each prompt from the character card, persona and stored
// history within a token budget.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/rpchat/internal/config"
	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
	"github.com/stupiduntilnot/rpchat/internal/db"
	"github.com/stupiduntilnot/rpchat/internal/logger"
	modelpkg "github.com/stupiduntilnot/rpchat/internal/model"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	out      io.Writer
	logLevel string
	logFile  string

	cfg       config.Config
	db        *sql.DB
	assembler *ctxpkg.Assembler
	// provider is built on first use; a preset provider is kept.
	provider modelpkg.Provider
	// backoff is the first retry delay for provider calls.
	backoff time.Duration
}

func newApp(out io.Writer) *app {
	return &app{out: out, backoff: time.Second}
}

func main() {
	a := newApp(os.Stdout)
	if err := a.execute(context.Background(), os.Args[1:]); err != nil {
		logger.Error("rpchat failed", "error", err)
		os.Exit(1)
	}
}

// execute runs one command line and releases the database afterwards.
func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.out)
	defer a.close()
	return root.ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rpchat",
		Short: "Roleplay chat with token-budgeted context assembly",
		Long: `rpchat keeps roleplay chats in a local SQLite database and sends each
turn to a chat-completion provider with a prompt built from the character
card, the user persona, the chat memory and as much recent history as the
token budget allows.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error { return a.open() },
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: RPCHAT_LOG_LEVEL or info]")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Write logs to file instead of stderr")

	root.AddCommand(
		a.initCmd(),
		a.newChatCmd(),
		a.sayCmd(),
		a.continueCmd(),
		a.regenerateCmd(),
		a.assembleCmd(),
		a.historyCmd(),
		a.memoryCmd(),
		a.modelsCmd(),
		a.eventsCmd(),
		a.eventTreeCmd(),
	)
	return root
}

// open loads configuration, configures logging and opens the database.
func (a *app) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, file := a.logLevel, a.logFile
	if level == "" {
		level = cfg.LogLevel
	}
	if file == "" {
		file = cfg.LogFile
	}
	if err := logger.Configure(level, file); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := db.InitSchema(database); err != nil {
		database.Close()
		return fmt.Errorf("failed to init schema: %w", err)
	}
	a.db = database

	a.assembler = &ctxpkg.Assembler{
		Tokenizer:        newTokenizer(cfg),
		Source:           &ctxpkg.SQLiteSource{DB: database},
		MinHistoryTokens: cfg.MinHistoryTokens,
		BatchSize:        cfg.HistoryBatchSize,
	}
	logger.Debug("rpchat configured",
		"db", cfg.DBPath,
		"provider", cfg.Provider,
		"model", cfg.Model,
		"budget", cfg.TokenBudget,
		"config_file", cfg.ConfigFile,
	)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

func newTokenizer(cfg config.Config) ctxpkg.Tokenizer {
	var base ctxpkg.Tokenizer = ctxpkg.WordTokenizer{}
	if cfg.Tokenizer == "chars" {
		base = ctxpkg.CharTokenizer{}
	}
	return ctxpkg.NewCachingTokenizer(base, cfg.TokenizerCache)
}
