package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/trickstertwo/lokilog"
	internalcmd "github.com/trickstertwo/lokilog/internal/cmd"
)

const (
	appName  = "lokilog"
	appShort = "lokilog ships log records to Grafana Loki"
	appLong  = `lokilog ships log records to a Grafana Loki push endpoint.

	Settings come from built-in defaults, an optional YAML file (--config),
	LOKILOG_* environment variables and finally the command line flags.`

	versionCmdName = "version"
)

var (
	// BuildDate is injected at build time.
	BuildDate = ""

	versionShort = "Display the " + appName + " version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		exitCode = 1
	}
	stop()
	os.Exit(exitCode)
}

// rootCmd constructs the root command with the shared persistent flags.
func rootCmd() *cobra.Command {
	global := &internalcmd.GlobalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: heredoc.Doc(appShort),
		Long:  heredoc.Doc(appLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErrln(err)
		_ = c.Usage()
		return err
	})

	global.AddFlags(cmd)
	cmd.AddCommand(
		internalcmd.SendCmd(global),
		internalcmd.PipeCmd(global),
		internalcmd.ServeMockCmd(),
		versionCmd(),
	)
	return cmd
}

// versionCmd prints version information.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   versionCmdName,
		Short: heredoc.Doc(versionShort),

		Args: func(cmd *cobra.Command, args []string) error {
			err := cobra.NoArgs(cmd, args)
			if err != nil {
				cmd.PrintErrln(err)
				_ = cmd.Usage()
			}
			return err
		},
		ValidArgsFunction: cobra.NoFileCompletions,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString(lokilog.Version, BuildDate, runtime.Version()))
		},
	}
}

func versionString(version, buildDate, runtimeVersion string) string {
	out := version
	if buildDate != "" {
		out += " (" + buildDate + ")"
	}
	return out + ", Go Version: " + runtimeVersion
}
