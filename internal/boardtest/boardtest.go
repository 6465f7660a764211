// Package boardtest holds board fixtures shared by package tests.
package boardtest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"boardedit/internal/document"

	"github.com/stretchr/testify/require"
)

// Segment, via and zone uuids in Board.
const (
	SegmentUUID = "5a1b0c2d-0000-4000-8000-000000000001"
	ViaUUID     = "5a1b0c2d-0000-4000-8000-000000000002"
	ZoneUUID    = "5a1b0c2d-0000-4000-8000-000000000003"
)

// Board is a small two-layer board: R1 and C1 share GND (routed) and VCC
// (unrouted), the outline is a 50x40 rectangle of gr_lines.
const Board = `(kicad_pcb
  (version 20240108)
  (generator "pcbnew")
  (general
    (thickness 1.6)
  )
  (title_block
    (title "Fixture")
  )
  (layers
    (0 "F.Cu" signal)
    (31 "B.Cu" signal)
    (37 "F.SilkS" user "F.Silkscreen")
    (44 "Edge.Cuts" user)
  )
  ; nets
  (net 0 "")
  (net 1 "GND")
  (net 2 "VCC")
  (footprint "Resistor_SMD:R_0603_1608Metric"
    (layer "F.Cu")
    (uuid "0b6e1c4e-0000-4000-8000-0000000000a1")
    (at 10 20 90)
    (property "Reference" "R1" (at 0 -1.5 0) (layer "F.SilkS") (uuid "0b6e1c4e-0000-4000-8000-0000000000a2"))
    (property "Value" "10k" (at 0 1.5 0) (layer "F.Fab") (uuid "0b6e1c4e-0000-4000-8000-0000000000a3"))
    (fp_line (start -0.5 -0.3) (end 0.5 -0.3) (stroke (width 0.12) (type solid)) (layer "F.SilkS"))
    (pad "1" smd roundrect (at -0.8 0 90) (size 0.8 0.95) (layers "F.Cu" "F.Paste" "F.Mask") (net 1 "GND"))
    (pad "2" smd roundrect (at 0.8 0 90) (size 0.8 0.95) (layers "F.Cu" "F.Paste" "F.Mask") (net 2 "VCC"))
  )
  (footprint "Capacitor_SMD:C_0603_1608Metric"
    (layer "F.Cu")
    (uuid "0b6e1c4e-0000-4000-8000-0000000000b1")
    (at 30.50 20)
    (property "Reference" "C1" (at 0 -1.5 0) (layer "F.SilkS") (uuid "0b6e1c4e-0000-4000-8000-0000000000b2"))
    (property "Value" "100n" (at 0 1.5 0) (layer "F.Fab") (uuid "0b6e1c4e-0000-4000-8000-0000000000b3"))
    (property "MPN")
    (pad "1" smd roundrect (at -0.8 0) (size 0.8 0.95) (layers "F.Cu" "F.Paste" "F.Mask") (net 1 "GND"))
    (pad "2" smd roundrect (at 0.8 0) (size 0.8 0.95) (layers "F.Cu" "F.Paste" "F.Mask") (net 2 "VCC"))
    (pad "3" smd roundrect (at 0 1) (size 0.8 0.95) (layers "F.Cu" "F.Paste" "F.Mask"))
  )
  (segment (start 9.2 20) (end 29.7 20) (width 0.25) (layer "F.Cu") (net 1) (uuid "5a1b0c2d-0000-4000-8000-000000000001"))
  (via (at 20 25) (size 0.8) (drill 0.4) (layers "F.Cu" "B.Cu") (net 1) (uuid "5a1b0c2d-0000-4000-8000-000000000002"))
  (zone (net 1) (net_name "GND") (layer "B.Cu") (uuid "5a1b0c2d-0000-4000-8000-000000000003")
    (polygon (pts (xy 0 0) (xy 50 0) (xy 50 40) (xy 0 40)))
  )
  (gr_line (start 0 0) (end 50 0) (stroke (width 0.05) (type default)) (layer "Edge.Cuts") (uuid "e0000000-0000-4000-8000-000000000001"))
  (gr_line (start 50 0) (end 50 40) (stroke (width 0.05) (type default)) (layer "Edge.Cuts") (uuid "e0000000-0000-4000-8000-000000000002"))
  (gr_line (start 50 40) (end 0 40) (stroke (width 0.05) (type default)) (layer "Edge.Cuts") (uuid "e0000000-0000-4000-8000-000000000003"))
  (gr_line (start 0 40) (end 0 0) (stroke (width 0.05) (type default)) (layer "Edge.Cuts") (uuid "e0000000-0000-4000-8000-000000000004"))
  (gr_text "REV A" (at 45 38) (layer "F.SilkS") (uuid "e0000000-0000-4000-8000-000000000005") (effects (font (size 1 1) (thickness 0.15))))
)
`

// WithSetup is Board plus a (setup ...) section holding one design rule and
// the constraints of F.Cu.
var WithSetup = strings.Replace(Board, "  ; nets\n", `  (setup
    (pad_to_mask_clearance 0.050)
    (layer_constraints (layer "F.Cu") (min_width 0.15) (min_clearance 0.2))
  )
  ; nets
`, 1)

// Parse returns Board as an in-memory document.
func Parse(t testing.TB) *document.Document {
	t.Helper()
	return ParseText(t, Board)
}

// ParseText returns text as an in-memory document.
func ParseText(t testing.TB, text string) *document.Document {
	t.Helper()
	d, err := document.Parse("fixture.kicad_pcb", []byte(text))
	require.NoError(t, err)
	return d
}

// Write stores Board under a fresh temp dir and returns its path.
func Write(t testing.TB) string {
	t.Helper()
	return WriteText(t, "board.kicad_pcb", Board)
}

// WriteText stores text as name under a fresh temp dir.
func WriteText(t testing.TB, name, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}
