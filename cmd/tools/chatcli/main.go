package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/site-concierge/backend/internal/analysis/reply"
	"github.com/zhouzirui/site-concierge/backend/internal/config"
	replyModel "github.com/zhouzirui/site-concierge/backend/internal/model/reply"
	"github.com/zhouzirui/site-concierge/backend/internal/service/ai"
	"github.com/zhouzirui/site-concierge/backend/internal/service/chat"
	"github.com/zhouzirui/site-concierge/backend/internal/service/widget"
)

type cliOptions struct {
	dbPath    string
	seed      uint64
	visitorID string
	sessionID string
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] .env not loaded, using system environment: %v\n", err)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := cliOptions{}
	cmd := &cobra.Command{
		Use:   "chatcli",
		Short: "Chat with the site concierge from a terminal",
		Long: "chatcli runs the chat widget driver in-process against a terminal view.\n" +
			"Commands: /toggle flips the chat window, /history reprints the transcript, /quit exits.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite file for transcripts and greeting flags (default: in-memory)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "fixed seed for fallback replies (0 picks a random seed)")
	cmd.Flags().StringVar(&opts.visitorID, "visitor", "", "visitor id (default: a new random id)")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "resume an existing session stored in --db")
	return cmd
}

func run(ctx context.Context, opts cliOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	transcripts, flags, closeStore, err := openStores(opts.dbPath)
	if err != nil {
		return err
	}
	defer closeStore()

	chatService := chat.NewService(transcripts, flags, cfg.Chat.SessionOptions())

	catalog := replyModel.NewMemoryStore(replyModel.Seed(), replyModel.SeedFallbacks())
	seed := opts.seed
	if seed == 0 {
		seed = cfg.Chat.RandomSeed
	}
	var src rand.Source
	if seed != 0 {
		src = rand.NewPCG(seed, seed)
	}
	aiService, err := ai.NewService(ctx, reply.NewSelectorFromStore(catalog, src))
	if err != nil {
		return fmt.Errorf("init reply service: %w", err)
	}

	session, err := openSession(ctx, chatService, opts)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer rl.Close()

	view := newTerminalView(rl.Stdout())
	driver := widget.New(session, view, aiService, chatService, cfg.Chat.WidgetOptions())
	defer driver.Close()

	fmt.Fprintf(rl.Stdout(), "session %s (visitor %s)\n", session.ID(), session.VisitorID())
	if err := driver.Attach(ctx); err != nil {
		return err
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := rl.Readline()
			if err != nil {
				readErr <- err
				return
			}
			lines <- line
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case line := <-lines:
			quit, err := handleLine(ctx, driver, session, view, line)
			if err != nil {
				view.notice(err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, driver *widget.Driver, session *chat.Session, view *terminalView, line string) (bool, error) {
	switch strings.TrimSpace(line) {
	case "/quit", "/exit":
		return true, nil
	case "/toggle":
		driver.ToggleWindow()
		return false, nil
	case "/history":
		view.printHistory(session.Transcript())
		return false, nil
	}

	if err := driver.Submit(ctx, line); err != nil {
		switch {
		case errors.Is(err, widget.ErrReplyPending):
			return false, errors.New("please wait for the current reply")
		case errors.Is(err, widget.ErrRateLimited):
			return false, errors.New("slow down a little")
		default:
			return false, err
		}
	}
	return false, nil
}

func openSession(ctx context.Context, svc *chat.Service, opts cliOptions) (*chat.Session, error) {
	if opts.sessionID != "" {
		session, err := svc.GetSession(ctx, opts.sessionID)
		if err != nil {
			return nil, fmt.Errorf("resume session %s: %w", opts.sessionID, err)
		}
		return session, nil
	}

	visitorID := opts.visitorID
	if visitorID == "" {
		visitorID = uuid.NewString()
	}
	return svc.CreateSession(ctx, visitorID)
}

func openStores(dbPath string) (chat.TranscriptStore, chat.FlagStore, func(), error) {
	if dbPath == "" {
		store := chat.NewMemoryStore()
		return store, store, func() {}, nil
	}
	dsn, err := chat.SQLiteDSNForFile(dbPath)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := chat.NewSQLiteStore(dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	return store, store, func() { _ = store.Close() }, nil
}
