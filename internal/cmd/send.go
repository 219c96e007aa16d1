package cmd

import (
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/trickstertwo/lokilog"
)

const (
	sendCmdUsage = "send MESSAGE..."
	sendCmdShort = "ship a single log record to Loki"
	sendCmdLong  = `Ship a single log record to Loki and wait until it was delivered.

	The record is sent with the configured job and env tags plus any --tag.
	The command waits at most shutdown_timeout for delivery and exits non-zero
	when the push failed.`

	sendCmdExample = `# Ship an info record with the default qa_automation/production tags
	lokilog send --url http://localhost:3100 start

	# Ship an error from a custom job
	lokilog send --url http://localhost:3100 --job nightly --level error "suite failed"`

	levelFlagName  = "level"
	levelFlagShort = "l"
	levelFlagUsage = "record severity: debug, info, warning, error or critical"

	loggerFlagName  = "logger"
	loggerFlagUsage = "logger name, defaults to the job name"
)

type sendFlags struct {
	level  string
	logger string
}

// SendCmd returns the "send" command.
func SendCmd(global *GlobalFlags) *cobra.Command {
	flags := &sendFlags{}
	cmd := &cobra.Command{
		Use:     sendCmdUsage,
		Short:   heredoc.Doc(sendCmdShort),
		Long:    heredoc.Doc(sendCmdLong),
		Example: heredoc.Doc(sendCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return handleError(cmd, errNoMessage)
			}
			level, err := lokilog.ParseLevel(flags.level)
			if err != nil {
				return handleError(cmd, err)
			}
			cfg, err := global.toConfig(cmd)
			if err != nil {
				return handleError(cmd, err)
			}
			// The record must not be filtered by the configured minimum.
			if level < cfg.MinLevel() {
				cfg.Level = level.String()
			}

			s, err := newShipper(cmd, cfg, flags.logger)
			if err != nil {
				return handleError(cmd, err)
			}
			s.logger.Log(level, strings.Join(args, " "))
			if err := s.close(); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.level, levelFlagName, levelFlagShort, "info", heredoc.Doc(levelFlagUsage))
	f.StringVar(&flags.logger, loggerFlagName, "", heredoc.Doc(loggerFlagUsage))
	return cmd
}
