package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/sahilm/fuzzy"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/a3tai/pdf-playground/internal/backend"
	"github.com/a3tai/pdf-playground/internal/state"
	"github.com/a3tai/pdf-playground/internal/watcher"
	"github.com/a3tai/pdf-playground/internal/workflow"
)

func (r *runner) uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "upload a PDF and make it the active file",
		ArgsUsage: "<file.pdf>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("upload takes exactly one file", 2)
			}
			shell := workflow.NewShell(r.client, newTerminalHost(c.Context, r.client, ".", r.ui), workflow.WithLogger(r.logger))
			return r.upload(c.Context, shell, c.Args().First())
		},
	}
}

// upload sends path through shell, records the active file and prints its
// field listing.
func (r *runner) upload(ctx context.Context, shell *workflow.Shell, path string) error {
	f, closer, err := workflow.OpenLocalFile(path, r.cfg.MaxUploadSize)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer closer.Close()

	outcome := shell.Upload(ctx, f)
	if !outcome.OK() {
		r.ui.errorf("%s", outcome.Message())
		return cli.Exit("", 1)
	}
	if _, err := r.store.SetActive(outcome.File.ID, outcome.File.LocalName, r.cfg.BackendURL); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	r.ui.successf("%s", outcome.Message())
	if outcome.File.ID != outcome.File.LocalName {
		r.ui.printf("Stored as %s\n", outcome.File.ID)
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.waitTimeout())
	defer cancel()
	if view, err := shell.WaitForFields(waitCtx); err == nil {
		r.ui.fieldView(view)
	}
	return nil
}

func (r *runner) fieldsCommand() *cli.Command {
	return &cli.Command{
		Name:  "fields",
		Usage: "list the form fields of the active file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "match",
				Aliases: []string{"m"},
				Usage:   "only show fields whose name fuzzy-matches `PATTERN`",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "output format: text, json or yaml",
				Value:   "text",
			},
		},
		Action: func(c *cli.Context) error {
			format := strings.ToLower(c.String("format"))
			if format != "text" && format != "json" && format != "yaml" {
				return cli.Exit(fmt.Sprintf("unknown format %q", format), 2)
			}

			shell, st, err := r.restore(newTerminalHost(c.Context, r.client, ".", r.ui))
			if err != nil {
				return err
			}
			if !st.HasActiveFile() {
				return errNoActiveFile
			}

			waitCtx, cancel := context.WithTimeout(c.Context, r.waitTimeout())
			defer cancel()
			view, err := shell.WaitForFields(waitCtx)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if view.Status == workflow.StatusError {
				r.ui.fieldView(view)
				return cli.Exit("", 1)
			}

			fields := view.Fields
			if pattern := c.String("match"); pattern != "" {
				fields = matchFields(pattern, fields)
			}
			return r.printFields(format, view, fields)
		},
	}
}

func (r *runner) printFields(format string, view workflow.FieldView, fields []backend.FormField) error {
	if fields == nil {
		fields = []backend.FormField{}
	}
	switch format {
	case "json":
		b, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		r.ui.printf("%s\n", b)
	case "yaml":
		b, err := yaml.Marshal(fields)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		r.ui.printf("%s", b)
	default:
		if view.Status == workflow.StatusEmpty {
			r.ui.printf("%s\n", view.Message)
			return nil
		}
		r.ui.headingf("Fields of %s", view.FileID)
		for _, f := range fields {
			r.ui.printf("  %s\n", f)
		}
	}
	return nil
}

// matchFields keeps the fields whose name fuzzy-matches pattern, best
// match first.
func matchFields(pattern string, fields []backend.FormField) []backend.FormField {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	matches := fuzzy.Find(pattern, names)
	out := make([]backend.FormField, 0, len(matches))
	for _, m := range matches {
		out = append(out, fields[m.Index])
	}
	return out
}

func (r *runner) fillCommand() *cli.Command {
	return &cli.Command{
		Name:  "fill",
		Usage: "fill one field of the active file, flatten it and save the result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "name",
				Aliases:  []string{"n"},
				Usage:    "field `NAME`",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "value",
				Usage: "field `VALUE` (may be empty)",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "directory or file the flattened PDF is saved to",
				Value:   ".",
			},
		},
		Action: func(c *cli.Context) error {
			host := newTerminalHost(c.Context, r.client, c.String("out"), r.ui)
			shell, st, err := r.restore(host)
			if err != nil {
				return err
			}
			if !st.HasActiveFile() {
				return errNoActiveFile
			}

			form, err := shell.FillForm()
			if err != nil {
				return errNoActiveFile
			}
			name := c.String("name")
			form.SetName(name)
			form.SetValue(c.String("value"))

			result, err := form.Submit(c.Context)
			if err != nil {
				// The host has already shown the alert.
				r.suggestFields(c.Context, shell, name)
				return cli.Exit("", 1)
			}

			if _, err := r.store.Update(func(s *state.State) error {
				s.LastFinal = result.FinalPDF
				return nil
			}); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if host.Err() != nil {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

// suggestFields points at likely field names after a failed fill.
func (r *runner) suggestFields(ctx context.Context, shell *workflow.Shell, name string) {
	waitCtx, cancel := context.WithTimeout(ctx, r.waitTimeout())
	defer cancel()
	view, err := shell.WaitForFields(waitCtx)
	if err != nil || view.Status != workflow.StatusList {
		return
	}

	names := make([]string, len(view.Fields))
	for i, f := range view.Fields {
		if f.Name == name {
			return
		}
		names[i] = f.Name
	}
	if matches := fuzzy.Find(name, names); len(matches) > 0 {
		r.ui.hintf("Did you mean %q?", matches[0].Str)
		return
	}
	sort.Strings(names)
	r.ui.hintf("Available fields: %s", strings.Join(names, ", "))
}

func (r *runner) clearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "forget the active file",
		Action: func(c *cli.Context) error {
			if err := r.store.Clear(); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			r.ui.printf("Active file cleared\n")
			return nil
		},
	}
}

func (r *runner) statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the active file",
		Action: func(c *cli.Context) error {
			st, err := r.store.Load()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			r.ui.printf("Backend: %s\n", r.cfg.BackendURL)
			r.ui.printf("State: %s\n", r.store.Path())
			if !st.HasActiveFile() {
				r.ui.printf("Active file: none\n")
				return nil
			}
			r.ui.headingf("Active file: %s", st.ActiveFile)
			if st.LocalName != "" && st.LocalName != st.ActiveFile {
				r.ui.printf("Uploaded as: %s\n", st.LocalName)
			}
			if !st.UploadedAt.IsZero() {
				r.ui.printf("Uploaded at: %s\n", st.UploadedAt.Local().Format(time.RFC3339))
			}
			if st.BackendURL != "" && st.BackendURL != r.cfg.BackendURL {
				r.ui.hintf("Uploaded to %s, not the current backend", st.BackendURL)
			}
			r.ui.printf("Original: %s\n", r.client.DownloadURL(st.ActiveFile))
			if st.LastFinal != "" {
				r.ui.printf("Last fill: %s\n", st.LastFinal)
			}
			return nil
		},
	}
}

func (r *runner) downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "save a document from the backend (default: the active file)",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "directory or file to save to",
				Value:   ".",
			},
			&cli.BoolFlag{
				Name:  "final",
				Usage: "download the result of the last fill",
			},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				st, err := r.store.Load()
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				id = st.ActiveFile
				if c.Bool("final") {
					id = st.LastFinal
				}
			}
			if id == "" {
				return errNoActiveFile
			}

			path, n, err := backend.SaveDocument(c.Context, r.client, id, c.String("out"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			r.ui.successf("Saved %s to %s (%d bytes)", id, path, n)
			return nil
		},
	}
}

func (r *runner) watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "upload every PDF that appears in a directory; the newest becomes active",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "settle",
				Usage: "how long a file must stay unchanged before upload",
				Value: watcher.DefaultSettle,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("watch takes exactly one directory", 2)
			}
			shell := workflow.NewShell(r.client, newTerminalHost(c.Context, r.client, ".", r.ui), workflow.WithLogger(r.logger))

			w := watcher.New(c.Args().First(), c.Duration("settle"), func(ctx context.Context, path string) {
				// Failures are already printed; keep watching.
				_ = r.upload(ctx, shell, path)
			}, r.logger)

			r.ui.printf("Watching %s for PDF files (Ctrl-C to stop)\n", c.Args().First())
			if err := w.Run(c.Context); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func (r *runner) shellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "run commands interactively",
		Action: func(c *cli.Context) error {
			scanner := bufio.NewScanner(r.in)
			for {
				r.ui.printf("%s> ", Name)
				if !scanner.Scan() {
					r.ui.printf("\n")
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}

				args, err := shlex.Split(line)
				if err != nil {
					r.ui.errorf("%v", err)
					continue
				}
				if args[0] == "shell" {
					r.ui.errorf("already in a shell")
					continue
				}

				child := &runner{in: r.in, out: r.out, errOut: r.errOut, version: r.version}
				if err := child.app().RunContext(c.Context, append(r.globalArgs(), args...)); err != nil {
					Report(r.errOut, err)
				}
				if c.Context.Err() != nil {
					return nil
				}
			}
		},
	}
}
