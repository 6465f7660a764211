package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// runHistory lists journaled commits, optionally for one file.
func runHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	j, err := openJournal()
	if err != nil {
		return err
	}
	if j == nil {
		fmt.Fprintln(out, warnStyle.Render("journal is disabled"))
		return nil
	}
	defer j.Close()

	path := ""
	if len(args) == 1 {
		if path, err = filepath.Abs(args[0]); err != nil {
			return err
		}
	}
	entries, err := j.History(cmd.Context(), path, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("no commits recorded"))
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s %s %s\n",
			titleStyle.Render(fmt.Sprintf("#%d", e.ID)),
			e.CommittedAt.Format("2006-01-02 15:04:05"),
			e.Path)
		if e.Description != "" {
			fmt.Fprintln(out, "  "+e.Description)
		}
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("  %d ops: %s  %016x -> %016x  session %s",
			e.Ops(), strings.Join(e.Kinds, ", "), e.OldHash, e.NewHash, e.SessionID)))
	}
	return nil
}
