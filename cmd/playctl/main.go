package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/cortezalberto/coderunner1/internal/app"
	"github.com/cortezalberto/coderunner1/internal/config"
	"github.com/cortezalberto/coderunner1/internal/repl"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// logs go to stderr and stay quiet unless a level is asked for
	level := cfg.Log.Level
	if _, ok := os.LookupEnv("LOG_LEVEL"); !ok {
		level = "warn"
	}
	logger := app.NewLogger(os.Stderr, level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "playground> ",
		HistoryFile:     cfg.REPL.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	defer rl.Close()

	a.Session.Init()
	return repl.New(a.Session, rl.Stdout()).Run(ctx, rl)
}
