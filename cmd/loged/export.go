package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/INLOpen/loged/compressors"
	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/export"
	"github.com/INLOpen/loged/store"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		output      string
		compression string
		levels      []string
	)
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the entries of a store to a compressed NDJSON export stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			paths, err := a.pathsOrStore(args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("compression") {
				compression = a.cfg.Export.Compression
			}
			c, err := compressors.ForName(compression)
			if err != nil {
				return err
			}
			var keep export.Filter
			if len(levels) > 0 {
				mask, err := core.ParseLevelMask(levels)
				if err != nil {
					return err
				}
				keep = export.SeverityFilter(mask)
			}

			r, err := store.OpenReader(paths[0], a.logger)
			if err != nil {
				return err
			}
			defer r.Close()
			it, err := r.Iterator()
			if err != nil {
				return err
			}
			defer it.Close()

			out := a.stdout
			if output != "-" {
				f, cerr := os.Create(output)
				if cerr != nil {
					return &core.IOError{Op: "create", Path: output, Err: cerr}
				}
				defer func() {
					if cerr := f.Close(); err == nil && cerr != nil {
						err = &core.IOError{Op: "close", Path: output, Err: cerr}
					}
				}()
				out = f
			}
			bw := bufio.NewWriter(out)

			w, err := export.NewWriter(bw, export.WriterOptions{
				Compressor: c,
				BlockSize:  a.cfg.Export.BlockSizeBytes,
				Logger:     a.logger,
			})
			if err != nil {
				return err
			}
			n, err := export.FromIterator(it, w, keep)
			if err != nil {
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return &core.IOError{Op: "export write", Path: output, Err: err}
			}
			a.logger.Info("Export finished", "store", paths[0], "output", output, "entries", n, "bytes", w.BytesWritten(), "compression", c.Type())
			if output != "-" {
				fmt.Fprintf(a.stderr, "exported %d entries to %s\n", n, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	cmd.Flags().StringVar(&compression, "compression", "zstd", "none, snappy, lz4 or zstd (default from export.compression)")
	cmd.Flags().StringSliceVar(&levels, "levels", nil, "only export these severities")
	return cmd
}

func newReadExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read-export [file]",
		Short: "Decode an export stream back to NDJSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return &core.IOError{Op: "open", Path: args[0], Err: err}
				}
				defer f.Close()
				in = f
			}
			r, err := export.NewReader(in)
			if err != nil {
				return err
			}
			bw := bufio.NewWriter(a.stdout)
			defer bw.Flush()
			var line []byte
			for {
				e, err := r.Next()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if line, err = e.AppendJSON(line[:0]); err != nil {
					return err
				}
				line = append(line, '\n')
				if _, err := bw.Write(line); err != nil {
					return err
				}
			}
		},
	}
}
