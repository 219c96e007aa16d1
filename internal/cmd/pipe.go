package cmd

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/trickstertwo/lokilog"
)

const (
	pipeCmdUsage = "pipe"
	pipeCmdShort = "ship every line read from stdin to Loki"
	pipeCmdLong  = `Read stdin line by line and ship every non-empty line as one record.

	Reading stops at end of input or on SIGINT/SIGTERM; queued records are then
	delivered within shutdown_timeout.`

	pipeCmdExample = `# Ship the output of a test run
	go test ./... 2>&1 | lokilog pipe --url http://localhost:3100 --tag suite=unit`

	maxLineSize = 1 << 20
)

type pipeFlags struct {
	level  string
	logger string
}

// PipeCmd returns the "pipe" command.
func PipeCmd(global *GlobalFlags) *cobra.Command {
	flags := &pipeFlags{}
	cmd := &cobra.Command{
		Use:     pipeCmdUsage,
		Short:   heredoc.Doc(pipeCmdShort),
		Long:    heredoc.Doc(pipeCmdLong),
		Example: heredoc.Doc(pipeCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := lokilog.ParseLevel(flags.level)
			if err != nil {
				return handleError(cmd, err)
			}
			cfg, err := global.toConfig(cmd)
			if err != nil {
				return handleError(cmd, err)
			}
			if level < cfg.MinLevel() {
				cfg.Level = level.String()
			}

			s, err := newShipper(cmd, cfg, flags.logger)
			if err != nil {
				return handleError(cmd, err)
			}
			readErr := pipeLines(cmd.Context(), cmd.InOrStdin(), s.logger, level)
			if err := s.close(); err != nil {
				return handleError(cmd, err)
			}
			if readErr != nil {
				return handleError(cmd, readErr)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.level, levelFlagName, levelFlagShort, "info", heredoc.Doc(levelFlagUsage))
	f.StringVar(&flags.logger, loggerFlagName, "", heredoc.Doc(loggerFlagUsage))
	return cmd
}

// pipeLines logs each line of r until EOF or ctx is done. A cancelled ctx is
// a normal stop, not an error.
func pipeLines(ctx context.Context, r io.Reader, logger *lokilog.Logger, level lokilog.Level) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
				logger.Log(level, line)
			}
		}
	}
}
