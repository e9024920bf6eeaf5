package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"codex-chat/internal/api"
	"codex-chat/internal/archive"
	"codex-chat/internal/config"
	"codex-chat/internal/export"
	"codex-chat/internal/observability"
	"codex-chat/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagServer    string
	flagUser      string
	flagDBPath    string
	flagLogFile   string
	flagExportDir string
	flagSearch    string
)

var rootCmd = &cobra.Command{
	Use:   "codex-chat",
	Short: "Terminal client for streaming agent chat sessions",
	Long: `codex-chat is a terminal UI over a chat backend that streams agent
replies. The left pane lists conversations; selecting one attaches a live
websocket and loads its history. Replies stream into the transcript as they
are generated, with the agent's reasoning shown in a collapsible panel.

Finalized turns are mirrored into a local SQLite archive so the sessions
and export subcommands work without the backend.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List archived conversations without contacting the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessions()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [conversation-id]",
	Short: "Export an archived conversation as markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(args[0])
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to config file (default ~/.config/codex-chat/config.yaml)")
	pf.StringVar(&flagServer, "server", "", "backend base URL (default "+config.DefaultServerURL+")")
	pf.StringVar(&flagUser, "user", "", "user id (required unless set in config or CODEX_CHAT_USER)")
	pf.StringVar(&flagDBPath, "db-path", "", "path to the local archive database")
	pf.StringVar(&flagLogFile, "log-file", "", "path to the log file")
	pf.StringVar(&flagExportDir, "export-dir", "", "directory for exported transcripts (default docs/codex)")

	sessionsCmd.Flags().StringVar(&flagSearch, "search", "", "rank conversations by archived message content")

	rootCmd.AddCommand(sessionsCmd, exportCmd)
}

func overrides() config.Config {
	return config.Config{
		ServerURL: flagServer,
		UserID:    flagUser,
		DBPath:    flagDBPath,
		LogFile:   flagLogFile,
		ExportDir: flagExportDir,
	}
}

func runTUI() error {
	cfg, err := config.Load(flagConfig, overrides())
	if err != nil {
		return err
	}

	logger, closeLog, err := observability.NewLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := archive.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	exporter, err := export.New(cfg.ExportDir)
	if err != nil {
		return err
	}

	client := api.New(cfg.ServerURL, logger)
	llmSessionID := uuid.NewString()
	logger.Info().
		Str("server", cfg.ServerURL).
		Str("llm_session_id", llmSessionID).
		Msg("starting")

	m := ui.NewModel(cfg, client, store, exporter, llmSessionID, logger)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func runSessions() error {
	cfg, err := config.LoadOffline(flagConfig, overrides())
	if err != nil {
		return err
	}
	store, err := archive.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conversations, err := store.Conversations(ctx, flagSearch, 200)
	if err != nil {
		return err
	}
	if len(conversations) == 0 {
		fmt.Println("no archived conversations")
		return nil
	}
	for _, c := range conversations {
		title := c.Title
		if title == "" {
			title = c.Preview
		}
		fmt.Printf("%s  %3d msgs  %s  %s\n",
			c.UpdatedAt.Format("2006-01-02 15:04"), c.MessageCount, c.ID, title)
	}
	return nil
}

func runExport(conversationID string) error {
	cfg, err := config.LoadOffline(flagConfig, overrides())
	if err != nil {
		return err
	}
	store, err := archive.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conv, err := store.Conversation(ctx, conversationID)
	if errors.Is(err, archive.ErrNoConversation) {
		return fmt.Errorf("conversation %s is not in the local archive; open it in the TUI first", conversationID)
	}
	if err != nil {
		return err
	}
	msgs, err := store.Messages(ctx, conversationID)
	if err != nil {
		return err
	}

	exporter, err := export.New(cfg.ExportDir)
	if err != nil {
		return err
	}
	path, err := exporter.Export(conv, msgs)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
