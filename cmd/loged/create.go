package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/cobra"

	"github.com/INLOpen/loged/core"
)

func newCreateCmd(a *app) *cobra.Command {
	var (
		maxSize     uint64
		levels      []string
		auditOnly   bool
		preallocate bool
	)
	cmd := &cobra.Command{
		Use:   "create [path]",
		Short: "Create a store file (or open an existing one and report its header)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := &a.cfg.Store
			if len(args) == 1 {
				sc.Path = args[0]
			}
			if cmd.Flags().Changed("max-size") {
				sc.MaxSizeBytes = maxSize
			}
			if cmd.Flags().Changed("levels") {
				sc.Levels = levels
			}
			if cmd.Flags().Changed("audit-only") {
				sc.AuditOnly = auditOnly
			}
			if cmd.Flags().Changed("preallocate") {
				sc.Preallocate = preallocate
			}

			if _, err := os.Stat(sc.Path); errors.Is(err, os.ErrNotExist) {
				size := sc.MaxSizeBytes
				if size == 0 {
					size = core.DefaultMaxSize
				}
				a.checkFreeSpace(sc.Path, size)
			}

			s, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			h := s.Header()
			fmt.Fprintf(a.stdout, "%s: capacity %d bytes, levels %s, audit_only %t\n", s.Path(), h.MaxSize, h.LevelMask, h.AuditOnly)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&maxSize, "max-size", 0, "total file capacity in bytes (default 16 MiB for new files)")
	cmd.Flags().StringSliceVar(&levels, "levels", nil, "accepted severities, e.g. fatal,error or all")
	cmd.Flags().BoolVar(&auditOnly, "audit-only", false, "accept audit entries only")
	cmd.Flags().BoolVar(&preallocate, "preallocate", false, "reserve disk blocks for the whole capacity")
	return cmd
}

// checkFreeSpace warns when the filesystem holding path cannot take a file
// of size bytes. It never fails the command.
func (a *app) checkFreeSpace(path string, size uint64) {
	dir := filepath.Dir(path)
	usage, err := disk.Usage(dir)
	if err != nil {
		a.logger.Debug("Could not read filesystem usage", "dir", dir, "error", err)
		return
	}
	if usage.Free < size {
		a.logger.Warn("Filesystem may not have room for the store",
			"dir", dir,
			"fstype", strings.TrimSpace(usage.Fstype),
			"free_bytes", usage.Free,
			"capacity_bytes", size,
		)
		fmt.Fprintf(a.stderr, "warning: %s has %d bytes free, store needs %d\n", dir, usage.Free, size)
	}
}
