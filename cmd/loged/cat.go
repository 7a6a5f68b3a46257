package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/store"
)

// maxConcurrentReads bounds how many store files cat maps at once.
const maxConcurrentReads = 4

func newCatCmd(a *app) *cobra.Command {
	var (
		levels  []string
		color   string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "cat [file...]",
		Short: "Print entries oldest first; several files are read concurrently and printed in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := a.pathsOrStore(args)
			if err != nil {
				return err
			}
			mask := core.AllLevels
			if len(levels) > 0 {
				if mask, err = core.ParseLevelMask(levels); err != nil {
					return err
				}
			}
			colored, err := useColor(color, a.stdout)
			if err != nil {
				return err
			}

			format := func(e *core.Entry) (string, error) {
				switch {
				case jsonOut:
					b, err := e.AppendJSON(nil)
					return string(b), err
				case colored:
					return e.Render(), nil
				default:
					return e.RenderPlain(), nil
				}
			}

			outputs := make([][]string, len(paths))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxConcurrentReads)
			for i, path := range paths {
				g.Go(func() error {
					lines, err := readLines(ctx, path, mask, format, a)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					outputs[i] = lines
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i, lines := range outputs {
				if len(paths) > 1 {
					if i > 0 {
						fmt.Fprintln(a.stdout)
					}
					fmt.Fprintf(a.stdout, "==> %s <==\n", paths[i])
				}
				for _, l := range lines {
					fmt.Fprintln(a.stdout, l)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&levels, "levels", nil, "only print these severities")
	cmd.Flags().StringVar(&color, "color", "auto", "colorize output: auto, always or never")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print entries as NDJSON")
	return cmd
}

// readLines formats the entries of one store through a read-only mapping.
func readLines(ctx context.Context, path string, mask core.LevelMask, format func(*core.Entry) (string, error), a *app) ([]string, error) {
	r, err := store.OpenReader(path, a.logger)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	it, err := r.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var lines []string
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := it.At().Entry
		if !mask.Matches(e.Severity) {
			continue
		}
		line, err := format(&e)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, it.Error()
}

// useColor resolves the --color flag. auto colors only when w is a terminal.
func useColor(mode string, w io.Writer) (bool, error) {
	switch strings.ToLower(mode) {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto", "":
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	}
	return false, fmt.Errorf("invalid --color %q: want auto, always or never", mode)
}
