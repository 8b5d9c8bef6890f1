package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/maildrift/mailedit/config"
	"github.com/maildrift/mailedit/editmsg"
	"github.com/maildrift/mailedit/editor"
	"github.com/maildrift/mailedit/filter"
	"github.com/maildrift/mailedit/report"
	"github.com/maildrift/mailedit/state"
	"github.com/maildrift/mailedit/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailedit",
		Short: "Edit or view messages of a local mailbox in your editor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting mailedit", "mailbox", cfg.MailboxPath, "format", cfg.Format, "view", cfg.View)

			return run(cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(newRecoverCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	mbx, err := store.Open(cfg.MailboxPath, cfg.Format)
	if err != nil {
		return fmt.Errorf("open mailbox: %w", err)
	}
	defer func() {
		_ = mbx.Close()
	}()

	journal, err := state.NewJournal(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	ed, err := editor.New(cfg.Editor)
	if err != nil {
		return err
	}

	collector := report.NewCollector()
	opts := editmsg.Options{
		Mailbox:          mbx,
		Editor:           ed,
		Report:           report.Console{},
		Logger:           logger,
		Journal:          journal,
		TempDir:          cfg.TempDir,
		UntagAfterDelete: cfg.UntagAfterDelete,
		Collect:          collector,
	}

	runErr := dispatch(cfg, opts, mbx, logger)

	summary := collector.Snapshot()
	logger.Info("run finished", summary.LogAttrs()...)
	if summary.Committed > 0 || summary.Failed > 0 {
		report.Console{}.Status("%d committed, %d unmodified, %d failed",
			summary.Committed, summary.Unmodified, summary.Failed)
	}

	if runErr != nil {
		return runErr
	}

	if mbx.Dirty() && !cfg.NoSync {
		if err := mbx.Sync(); err != nil {
			return fmt.Errorf("sync mailbox: %w", err)
		}
		logger.Info("mailbox synced", "path", cfg.MailboxPath)
	}

	return nil
}

func dispatch(cfg config.Config, opts editmsg.Options, mbx store.Mailbox, logger *slog.Logger) error {
	if cfg.Message > 0 {
		msgs := mbx.Messages()
		if cfg.Message > len(msgs) {
			return fmt.Errorf("message %d does not exist, mailbox has %d messages", cfg.Message, len(msgs))
		}
		msg := msgs[cfg.Message-1]
		var err error
		if cfg.View {
			_, err = editmsg.View(opts, msg)
		} else {
			_, err = editmsg.Edit(opts, msg)
		}
		return err
	}

	sel, err := filter.Select(mbx, filter.Options{
		Tags:        cfg.Tags,
		MatchHeader: cfg.MatchHeader,
		MatchBody:   cfg.MatchBody,
	})
	if err != nil {
		return err
	}
	if sel.Count() == 0 {
		report.Console{}.Status("No messages matched")
		return nil
	}
	logger.Info("selection built", "tagged", sel.Count())

	if cfg.View {
		return editmsg.ViewTagged(opts, sel)
	}
	return editmsg.EditTagged(opts, sel)
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mailedit-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
