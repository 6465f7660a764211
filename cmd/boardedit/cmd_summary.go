package main

import (
	"fmt"
	"strconv"
	"strings"

	"boardedit/internal/document"
	"boardedit/internal/session"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// runSummary prints the board overview of a file. It opens the file
// read-only, so it works while another process holds a session on it.
func runSummary(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	ro, err := m.OpenReadOnly(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(ro.Document.Path(), ro.Document.Project()))
	return nil
}

// newManager builds a session manager from the loaded config.
func newManager() (*session.Manager, error) {
	return newJournaledManager(nil)
}

func renderSummary(path string, v *document.View) string {
	s := v.Summary()

	rows := []string{
		titleStyle.Render(path),
		row("format", fmt.Sprintf("%s %s (%s)", s.Form, s.Version, s.Generator)),
	}
	if s.Title != "" {
		rows = append(rows, row("title", s.Title))
	}
	rows = append(rows,
		row("thickness", strconv.FormatFloat(s.Thickness, 'f', -1, 64)+" mm"),
		row("copper layers", strconv.Itoa(s.CopperLayers)),
	)
	if s.Outline != nil {
		rows = append(rows, row("outline", fmt.Sprintf("%g x %g mm", s.Outline.Width(), s.Outline.Height())))
	} else {
		rows = append(rows, row("outline", warnStyle.Render("none")))
	}
	rows = append(rows,
		row("components", strconv.Itoa(s.Components)),
		row("nets", strconv.Itoa(s.Nets)),
		row("tracks", strconv.Itoa(s.Segments)),
		row("vias", strconv.Itoa(s.Vias)),
		row("zones", strconv.Itoa(s.Zones)),
	)

	unrouted := v.Ratsnest()
	if len(unrouted) == 0 {
		rows = append(rows, row("unrouted", okStyle.Render("none")))
	} else {
		rows = append(rows, row("unrouted", warnStyle.Render(strconv.Itoa(len(unrouted))+" nets")))
		for _, u := range unrouted {
			pads := make([]string, len(u.Pads))
			for i, p := range u.Pads {
				pads[i] = p.Reference + "." + p.Pad
			}
			rows = append(rows, row("", mutedStyle.Render(u.Net.Name+": "+strings.Join(pads, " "))))
		}
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
