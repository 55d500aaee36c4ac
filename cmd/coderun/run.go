package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"coderun/internal/config"
	"coderun/internal/protocol"
	"coderun/internal/realtime"
	"coderun/internal/session"
	"coderun/internal/terminal"
	"coderun/internal/watcher"
)

type runOptions struct {
	path     string
	language string
	endpoint string
	watch    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a source file on the runner and attach the terminal to it",
		Long: `Run a source file on the runner and attach the terminal to it.

The command exits with the program's exit code. Ctrl+C asks the runner to
stop the program; a second Ctrl+C drops the connection without waiting.
With --watch the file is run again on every save. The terminal is handed
back when a run ends, so Ctrl+C between runs stops the command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.path = args[0]
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.endpoint != "" {
				cfg.Endpoint = strings.TrimRight(opts.endpoint, "/")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runFile(cmd.Context(), cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.language, "language", "l", "", "source language (default inferred from the file extension)")
	flags.StringVar(&opts.endpoint, "endpoint", "", "runner websocket URL (overrides RUNNER_BASE_URL)")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "run again whenever the file is saved")
	return cmd
}

func runFile(ctx context.Context, cfg config.Config, opts runOptions, stdin io.Reader, stdout io.Writer) error {
	lang, err := resolveLanguage(opts.path, opts.language)
	if err != nil {
		return err
	}
	source, err := os.ReadFile(opts.path)
	if err != nil {
		return err
	}

	console := terminal.NewConsole(stdin, stdout)
	ctrl := session.NewController(sessionOptions(cfg), dialRunner, consoleSurfaces(console))
	defer ctrl.Stop()

	if opts.watch {
		return watchFile(ctx, cfg, ctrl, opts.path, string(source), lang)
	}

	if err := ctrl.Start(ctx, string(source), lang); err != nil {
		return err
	}
	// The session loop also ends on ctx cancellation, after asking the
	// runner to stop the program.
	<-ctrl.Done()

	code, ok := ctrl.ExitCode()
	switch {
	case ok && code != 0:
		return exitStatus(code)
	case ok:
		return nil
	case ctx.Err() != nil:
		return exitStatus(130)
	default:
		return errors.New("connection closed before the program exited")
	}
}

// watchFile runs source and starts a fresh session whenever the file
// changes, until ctx is cancelled.
func watchFile(ctx context.Context, cfg config.Config, ctrl *session.Controller, path, source string, lang protocol.Language) error {
	log := pslog.Ctx(ctx)

	updates := make(chan string, 1)
	w, err := watcher.New(log, path, cfg.Watch.Debounce, func(src string) {
		// Keep only the latest save.
		for {
			select {
			case updates <- src:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer w.Close()

	start := func(src string) {
		if err := ctrl.Start(ctx, src, lang); err != nil {
			log.Error("start session", "error", err)
		}
	}

	log.Info("watching for changes", "file", w.Path())
	start(source)
	for {
		select {
		case <-ctx.Done():
			return nil
		case src := <-updates:
			log.Info("source changed, restarting session", "file", w.Path())
			start(src)
		}
	}
}

func resolveLanguage(path, name string) (protocol.Language, error) {
	if name != "" {
		return protocol.ParseLanguage(name)
	}
	return protocol.LanguageForFile(path)
}

func sessionOptions(cfg config.Config) session.Options {
	return session.Options{
		Endpoint:    cfg.Endpoint,
		TimeLimit:   cfg.TimeLimit(),
		MaxOutput:   cfg.MaxOutputLength,
		DialTimeout: cfg.DialTimeout,
		ExitGrace:   cfg.ExitGrace,
	}
}

func dialRunner(ctx context.Context, endpoint string) (session.Channel, error) {
	conn, err := realtime.Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func consoleSurfaces(console *terminal.Console) session.SurfaceFunc {
	return func() (session.Surface, error) {
		s, err := console.NewSurface()
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
