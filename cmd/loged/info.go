package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/INLOpen/loged/store"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info [file...]",
		Short: "Show the header and occupancy of store files",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := a.pathsOrStore(args)
			if err != nil {
				return err
			}
			for i, path := range paths {
				if i > 0 {
					fmt.Fprintln(a.stdout)
				}
				if err := a.printInfo(path); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			return nil
		},
	}
}

func (a *app) printInfo(path string) error {
	r, err := store.OpenReader(path, a.logger)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	it, err := r.Iterator()
	if err != nil {
		return err
	}
	defer it.Close()
	var entries int
	var oldest, newest string
	for it.Next() {
		rec := it.At()
		if entries == 0 {
			oldest = rec.Entry.ReceivedTime().Format(time.RFC3339Nano)
		}
		newest = rec.Entry.ReceivedTime().Format(time.RFC3339Nano)
		entries++
	}
	if err := it.Error(); err != nil {
		a.logger.Warn("Store has unreadable records", "path", path, "error", err)
	}

	used := h.CurPos - h.StartPos
	if h.Wrapped() && h.SeamPos > h.CurPos {
		used += h.SeamPos - h.CurPos
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "path:\t%s\n", path)
	fmt.Fprintf(tw, "version:\t%d\n", h.Version)
	fmt.Fprintf(tw, "capacity:\t%d bytes (entry region %d)\n", h.MaxSize, h.Capacity())
	fmt.Fprintf(tw, "start_pos:\t%d\n", h.StartPos)
	fmt.Fprintf(tw, "cur_pos:\t%d\n", h.CurPos)
	fmt.Fprintf(tw, "seam_pos:\t%d\n", h.SeamPos)
	fmt.Fprintf(tw, "wrapped:\t%t\n", h.Wrapped())
	fmt.Fprintf(tw, "used:\t%d bytes\n", used)
	fmt.Fprintf(tw, "levels:\t%s\n", h.LevelMask)
	fmt.Fprintf(tw, "audit_only:\t%t\n", h.AuditOnly)
	fmt.Fprintf(tw, "entries:\t%d\n", entries)
	if entries > 0 {
		fmt.Fprintf(tw, "oldest:\t%s\n", oldest)
		fmt.Fprintf(tw, "newest:\t%s\n", newest)
	}
	return tw.Flush()
}
