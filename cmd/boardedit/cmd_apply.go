package main

import (
	"context"
	"fmt"

	"boardedit/internal/journal"
	"boardedit/internal/logging"
	"boardedit/internal/ops"
	"boardedit/internal/session"

	"github.com/spf13/cobra"
)

// runApply runs a script in one session. Every step must succeed for the
// file to change.
func runApply(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	out := cmd.OutOrStdout()
	target, scriptPath := args[0], args[1]

	script, err := ops.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	binders, err := ops.Default().BindScript(script)
	if err != nil {
		return err
	}

	var j *journal.Journal
	if !dryRun {
		if j, err = openJournal(); err != nil {
			logging.JournalWarn("journal unavailable, commit will not be recorded: %v", err)
			j = nil
		}
		if j != nil {
			defer j.Close()
		}
	}
	m, err := newJournaledManager(j)
	if err != nil {
		return err
	}

	s, err := m.Open(ctx, target)
	if err != nil {
		return err
	}
	s.SetDescription(script.Description)

	for i, bind := range binders {
		rec, err := s.Apply(ctx, bind)
		if err != nil {
			rollback(s)
			return fmt.Errorf("step %d (%s): %w", i+1, script.Steps[i].Op, err)
		}
		fmt.Fprintf(out, "%s %s\n", mutedStyle.Render(fmt.Sprintf("#%d", rec.Seq)), rec.Description)
	}

	if dryRun {
		fmt.Fprintln(out, renderDiff(s.Diff()))
		rollback(s)
		fmt.Fprintln(out, warnStyle.Render("dry run: nothing written"))
		return nil
	}

	res, err := s.Commit(ctx)
	if err != nil {
		rollback(s)
		return err
	}
	if !res.Written {
		fmt.Fprintln(out, mutedStyle.Render("no changes; "+res.Path+" not written"))
		return nil
	}
	msg := fmt.Sprintf("committed %d operations to %s (%d bytes)", res.Ops, res.Path, res.Bytes)
	if res.JournalID > 0 {
		msg += fmt.Sprintf(", journal #%d", res.JournalID)
	}
	fmt.Fprintln(out, okStyle.Render(msg))
	return nil
}

// newJournaledManager is newManager with commit history. A nil journal
// disables it.
func newJournaledManager(j *journal.Journal) (*session.Manager, error) {
	opts, err := session.OptionsFromConfig(currentConfig())
	if err != nil {
		return nil, err
	}
	if j != nil {
		opts.Journal = j
	}
	return session.NewManager(opts), nil
}

func rollback(s *session.Session) {
	if err := s.Rollback(context.Background()); err != nil {
		logging.SessionWarn("rollback of %s failed: %v", s.ID(), err)
	}
}
