package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/INLOpen/loged/config"
	"github.com/INLOpen/loged/core"
	"github.com/INLOpen/loged/store"
)

type appendFlags struct {
	severity string
	audit    bool
	sender   string
	extra    string
	stdin    bool
}

func newAppendCmd(a *app) *cobra.Command {
	var f appendFlags
	cmd := &cobra.Command{
		Use:   "append [message...]",
		Short: "Append one entry, or NDJSON entries from stdin with --stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			if f.stdin {
				return a.appendStream(s, cmd.InOrStdin())
			}
			if len(args) == 0 {
				return errors.New("append needs a message or --stdin")
			}
			e, err := f.entry(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if err := s.Append(&e); err != nil {
				if core.IsPolicyRejected(err) {
					fmt.Fprintf(a.stderr, "not stored: %v\n", err)
					return nil
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.severity, "severity", "l", "notice", "entry severity")
	cmd.Flags().BoolVar(&f.audit, "audit", false, "mark the entry as an audit entry")
	cmd.Flags().StringVar(&f.sender, "sender", "", "sender id (default: the nil sender)")
	cmd.Flags().StringVar(&f.extra, "extra", "", "extra payload as a JSON object")
	cmd.Flags().BoolVar(&f.stdin, "stdin", false, "read NDJSON entries from stdin")
	return cmd
}

func (f appendFlags) entry(message string) (core.Entry, error) {
	e := core.NewEntry()
	sev, err := core.ParseSeverity(f.severity)
	if err != nil {
		return core.Entry{}, err
	}
	e.Severity = sev
	e.IsAudit = f.audit
	e.Message = message
	if f.sender != "" {
		e.SenderID = f.sender
	}
	if f.extra != "" {
		v, err := core.ParseJSON(f.extra)
		if err != nil {
			return core.Entry{}, fmt.Errorf("--extra: %w", err)
		}
		m, ok := v.AsMap()
		if !ok {
			return core.Entry{}, fmt.Errorf("--extra must be a JSON object, got %s", v.Kind())
		}
		e.Extra = m
	}
	now := core.Now()
	e.SentAt, e.ReceivedAt = now, now
	return e, nil
}

// appendStream appends one entry per NDJSON line of r. Entries without a
// received_at get the current time. Rejected entries are counted, not fatal.
func (a *app) appendStream(s *store.Store, r io.Reader) error {
	if s.Header().Wrapped() {
		a.logger.Info("Appending to a store that has wrapped", "path", s.Path())
	}
	cp := store.NewCheckpointer(s, config.ParseDuration(a.cfg.Store.SyncInterval, time.Second, a.logger))
	cp.Start()
	defer cp.Stop()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var stored, rejected, line int
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		e, err := core.ParseEntryJSON(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if e.ReceivedAt == (core.Timestamp{}) {
			e.ReceivedAt = core.Now()
		}
		if err := s.Append(&e); err != nil {
			if core.IsPolicyRejected(err) {
				rejected++
				continue
			}
			return fmt.Errorf("line %d: %w", line, err)
		}
		stored++
	}
	if err := sc.Err(); err != nil {
		return &core.IOError{Op: "read", Path: os.Stdin.Name(), Err: err}
	}
	fmt.Fprintf(a.stderr, "stored %d entries, rejected %d\n", stored, rejected)
	return nil
}
