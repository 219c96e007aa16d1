package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/trickstertwo/lokilog"
	"github.com/trickstertwo/lokilog/sink/console"
	"github.com/trickstertwo/lokilog/sink/loki/lokitest"
)

const (
	serveMockCmdUsage = "serve-mock"
	serveMockCmdShort = "run a local Loki push endpoint that prints what it receives"
	serveMockCmdLong  = `Run a local endpoint accepting Loki pushes in every protocol version
	(0, 1 and proto, gzip or snappy) and print each received stream to stdout.

	Useful to check tags and lines without a real Loki.`

	serveMockCmdExample = `# Listen on the default Loki port
	lokilog serve-mock

	# Ship to it from another terminal
	lokilog send --url http://127.0.0.1:3100 start`

	addrFlagName  = "addr"
	addrFlagUsage = "listen address"

	statusFlagName  = "status"
	statusFlagUsage = "HTTP status answered to every push"
)

type serveMockFlags struct {
	addr   string
	status int
}

// ServeMockCmd returns the "serve-mock" command.
func ServeMockCmd() *cobra.Command {
	flags := &serveMockFlags{}
	cmd := &cobra.Command{
		Use:     serveMockCmdUsage,
		Short:   heredoc.Doc(serveMockCmdShort),
		Long:    heredoc.Doc(serveMockCmdLong),
		Example: heredoc.Doc(serveMockCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := serveMock(cmd.Context(), flags, cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.addr, addrFlagName, "127.0.0.1:3100", heredoc.Doc(addrFlagUsage))
	f.IntVar(&flags.status, statusFlagName, http.StatusNoContent, heredoc.Doc(statusFlagUsage))
	return cmd
}

func serveMock(ctx context.Context, flags *serveMockFlags, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := lokilog.NewBuilder("serve-mock").
		AddSink(console.New(console.Options{Writer: errOut})).
		Build()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", flags.addr)
	if err != nil {
		return err
	}

	rec := lokitest.NewRecorder()
	rec.SetStatus(flags.status)
	var mu sync.Mutex
	rec.OnPush = func(p lokitest.Push) {
		mu.Lock()
		defer mu.Unlock()
		printPush(out, p)
	}

	srv := &http.Server{Handler: rec, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	log.Info().Str("addr", ln.Addr().String()).Int("status", flags.status).Msg("mock push endpoint listening")

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Int("pushes", len(rec.Pushes())).Msg("mock push endpoint stopped")
	return nil
}

// printPush writes one line per entry: protocol, sorted labels, timestamp
// and line.
func printPush(w io.Writer, p lokitest.Push) {
	for _, s := range p.Streams {
		keys := slices.Sorted(maps.Keys(s.Labels))
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%q", k, s.Labels[k])
		}
		labels := "{" + strings.Join(pairs, ",") + "}"
		for _, e := range s.Entries {
			fmt.Fprintf(w, "v%s %s %s %s\n", p.Version, labels, e.Time.UTC().Format(time.RFC3339Nano), e.Line)
		}
	}
}
