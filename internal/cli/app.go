// Package cli is the terminal client. Each invocation restores the active
// file from the state store, runs one front-end action against the
// backend, and saves the active file back.
package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/a3tai/pdf-playground/internal/backend"
	"github.com/a3tai/pdf-playground/internal/config"
	"github.com/a3tai/pdf-playground/internal/logging"
	"github.com/a3tai/pdf-playground/internal/state"
	"github.com/a3tai/pdf-playground/internal/workflow"
)

// Name is the client's executable name.
const Name = "pdfplay"

var errNoActiveFile = cli.Exit("no active file: run 'pdfplay upload <file>' first", 1)

// runner holds what one invocation of the app needs. Before fills in the
// backend side from flags and the environment.
type runner struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	version string

	cfg     *config.Config
	client  *backend.Client
	store   *state.Store
	logger  *logrus.Logger
	ui      *printer
	noColor bool
	debug   bool
}

// NewApp builds the terminal client reading from in and writing to out
// and errOut. Errors are returned from Run, never handled by exiting.
func NewApp(in io.Reader, out, errOut io.Writer, version string) *cli.App {
	r := &runner{in: in, out: out, errOut: errOut, version: version}
	return r.app()
}

func (r *runner) app() *cli.App {
	return &cli.App{
		Name:      Name,
		Usage:     "upload a PDF form, list its fields, fill and flatten one",
		Version:   r.version,
		Reader:    r.in,
		Writer:    r.out,
		ErrWriter: r.errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "backend base URL (default from PDF_PLAYGROUND_BACKEND_URL or " + config.DefaultBackendURL + ")",
			},
			&cli.StringFlag{
				Name:    "state",
				Usage:   "state file remembering the active file",
				EnvVars: []string{state.EnvPath},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-request timeout, 0 disables",
			},
			&cli.BoolFlag{
				Name:    "no-color",
				Usage:   "disable colored output",
				EnvVars: []string{"NO_COLOR"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log requests to stderr",
			},
		},
		Before:         r.before,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			r.uploadCommand(),
			r.fieldsCommand(),
			r.fillCommand(),
			r.clearCommand(),
			r.statusCommand(),
			r.downloadCommand(),
			r.watchCommand(),
			r.shellCommand(),
		},
	}
}

func (r *runner) before(c *cli.Context) error {
	r.noColor = c.Bool("no-color")
	r.debug = c.Bool("debug")
	r.ui = newPrinter(r.out, r.errOut, r.noColor)
	r.logger = logging.ForTerminal(r.errOut, r.debug)

	cfg, err := config.FromEnv()
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if b := c.String("backend"); b != "" {
		cfg.BackendURL = b
	}
	if c.IsSet("timeout") {
		cfg.RequestTimeout = c.Duration("timeout")
	}
	if err := cfg.ValidateBackend(); err != nil {
		return cli.Exit(err.Error(), 2)
	}
	r.cfg = cfg

	r.client, err = backend.NewClient(cfg.BackendURL,
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithRateLimit(cfg.RateLimit),
		backend.WithLogger(r.logger),
	)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	path := c.String("state")
	if path == "" {
		if path, err = state.DefaultPath(); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}
	r.store = state.NewStore(path, r.logger)
	return nil
}

// restore builds a shell with the stored active file mounted.
func (r *runner) restore(host workflow.Host) (*workflow.Shell, state.State, error) {
	st, err := r.store.Load()
	if err != nil {
		return nil, st, cli.Exit(err.Error(), 1)
	}
	shell := workflow.NewShell(r.client, host, workflow.WithLogger(r.logger))
	if st.HasActiveFile() {
		shell.SetActiveFile(st.ActiveFile)
	}
	return shell, st, nil
}

func (r *runner) waitTimeout() time.Duration {
	if r.cfg.RequestTimeout > 0 {
		return r.cfg.RequestTimeout
	}
	return config.DefaultRequestTimeout
}

// globalArgs repeats this invocation's global flags for a nested run.
func (r *runner) globalArgs() []string {
	args := []string{Name,
		"--backend", r.cfg.BackendURL,
		"--state", r.store.Path(),
		"--timeout", r.cfg.RequestTimeout.String(),
	}
	if r.noColor {
		args = append(args, "--no-color")
	}
	if r.debug {
		args = append(args, "--debug")
	}
	return args
}

// ExitCode maps an error returned by the app to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

// Report prints err to w unless it carries no message.
func Report(w io.Writer, err error) {
	if err == nil {
		return
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, msg)
	}
}
