package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		var status exitStatus
		if errors.As(err, &status) {
			return int(status)
		}
		pslog.Ctx(ctx).With("err", err).Error("coderun command failed")
		return 1
	}
	return 0
}

// exitStatus carries the remote program's exit code out of a command
// without being reported as a failure.
type exitStatus int

func (e exitStatus) Error() string {
	return "program exited with a non-zero code"
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coderun",
		Short:         "Run source files on a remote code runner with an interactive terminal",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default $XDG_CONFIG_HOME/coderun/config.yaml)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newMockRunnerCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newTemplateCmd())

	return root
}
