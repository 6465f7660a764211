package document

import (
	"math"
	"sort"
	"strconv"

	"boardedit/internal/sexp"

	"github.com/jinzhu/copier"
)

// =============================================================================
// PROJECTION TYPES
// =============================================================================

// Point is a 2D coordinate in millimetres.
type Point struct {
	X float64
	Y float64
}

// Placement is a position with an optional rotation in degrees.
type Placement struct {
	X     float64
	Y     float64
	Angle float64
}

// Pad is one pad of a footprint.
type Pad struct {
	Number  string
	Type    string
	Shape   string
	At      Placement
	Size    Point
	Layers  []string
	Net     int
	NetName string
	Node    sexp.NodeID
}

// Component is a placed footprint (board) or symbol (schematic).
type Component struct {
	Reference   string
	Value       string
	Description string
	Library     string
	Layer       string
	UUID        string
	At          Placement
	Properties  map[string]string
	Pads        []Pad
	Form        string // footprint, module or symbol
	Node        sexp.NodeID
}

// Net is a (net N "name") declaration.
type Net struct {
	Number int
	Name   string
	Node   sexp.NodeID
}

// Segment is a routed track.
type Segment struct {
	UUID  string
	Start Point
	End   Point
	Width float64
	Layer string
	Net   int
	Node  sexp.NodeID
}

// Via is a plated hole between layers.
type Via struct {
	UUID   string
	At     Point
	Size   float64
	Drill  float64
	Layers []string
	Net    int
	Node   sexp.NodeID
}

// Zone is a copper pour.
type Zone struct {
	UUID    string
	Net     int
	NetName string
	Layer   string
	Points  []Point
	Node    sexp.NodeID
}

// Layer is one entry of the (layers ...) table.
type Layer struct {
	Number   int
	Name     string
	Type     string
	UserName string
}

// Box is an axis-aligned bounding box.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// Width of the box.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height of the box.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Summary is the board overview used by the CLI.
type Summary struct {
	Form         string
	Version      string
	Generator    string
	Title        string
	Thickness    float64
	CopperLayers int
	Components   int
	Nets         int
	Segments     int
	Vias         int
	Zones        int
	Outline      *Box
	UnroutedNets int
	Layers       []Layer
}

// Unrouted is a net with pads on at least two places and no track.
type Unrouted struct {
	Net  Net
	Pads []PadRef
}

// PadRef names one pad by component and pad number.
type PadRef struct {
	Reference string
	Pad       string
}

// =============================================================================
// VIEW
// =============================================================================

// View is a read-only typed projection of a document, built in one walk and
// indexed for constant-time lookups. Accessors return copies, so a caller
// cannot reach into the cache.
type View struct {
	summary    Summary
	components map[string]*Component
	compOrder  []string
	netsByName map[string]*Net
	netsByNum  map[int]*Net
	netOrder   []int
	segments   map[string]*Segment
	segOrder   []string
	vias       map[string]*Via
	viaOrder   []string
	zones      map[string]*Zone
	zoneOrder  []string
	outline    *Box
}

// Project returns the typed projection of d, building it on first use after
// each mutation.
func (d *Document) Project() *View {
	if d.view == nil {
		d.view = buildView(d.tree, d.Top())
	}
	return d.view
}

func buildView(t *sexp.Tree, top sexp.NodeID) *View {
	v := &View{
		components: make(map[string]*Component),
		netsByName: make(map[string]*Net),
		netsByNum:  make(map[int]*Net),
		segments:   make(map[string]*Segment),
		vias:       make(map[string]*Via),
		zones:      make(map[string]*Zone),
	}
	v.summary.Thickness = 1.6
	if top == sexp.NoNode {
		return v
	}
	v.summary.Form = t.Head(top)

	var outline []Point
	for _, c := range t.Node(top).Children {
		switch t.Head(c) {
		case "version":
			v.summary.Version = t.FirstArg(c)
		case "generator":
			v.summary.Generator = t.FirstArg(c)
		case "general":
			if th := t.Child(c, "thickness"); th != sexp.NoNode {
				v.summary.Thickness = parseFloat(t.FirstArg(th))
			}
		case "title_block":
			if title := t.Child(c, "title"); title != sexp.NoNode {
				v.summary.Title = t.FirstArg(title)
			}
		case "layers":
			v.summary.Layers = projectLayers(t, c)
		case "net":
			n := &Net{Number: atoi(t.FirstArg(c)), Node: c}
			if args := t.ArgValues(c); len(args) > 1 {
				n.Name = args[1]
			}
			v.netsByName[n.Name] = n
			v.netsByNum[n.Number] = n
			v.netOrder = append(v.netOrder, n.Number)
		case "footprint", "module", "symbol":
			comp := projectComponent(t, c)
			if comp.Reference == "" {
				continue
			}
			if _, dup := v.components[comp.Reference]; dup {
				continue
			}
			v.components[comp.Reference] = comp
			v.compOrder = append(v.compOrder, comp.Reference)
		case "segment":
			s := &Segment{
				UUID:  uuidOf(t, c),
				Start: pointOf(t, t.Child(c, "start")),
				End:   pointOf(t, t.Child(c, "end")),
				Width: parseFloat(t.FirstArg(t.Child(c, "width"))),
				Layer: t.FirstArg(t.Child(c, "layer")),
				Net:   atoi(t.FirstArg(t.Child(c, "net"))),
				Node:  c,
			}
			key := itemKey(s.UUID, c)
			v.segments[key] = s
			v.segOrder = append(v.segOrder, key)
		case "via":
			via := &Via{
				UUID:   uuidOf(t, c),
				At:     pointOf(t, t.Child(c, "at")),
				Size:   parseFloat(t.FirstArg(t.Child(c, "size"))),
				Drill:  parseFloat(t.FirstArg(t.Child(c, "drill"))),
				Layers: t.ArgValues(t.Child(c, "layers")),
				Net:    atoi(t.FirstArg(t.Child(c, "net"))),
				Node:   c,
			}
			key := itemKey(via.UUID, c)
			v.vias[key] = via
			v.viaOrder = append(v.viaOrder, key)
		case "zone":
			z := &Zone{
				UUID:    uuidOf(t, c),
				Net:     atoi(t.FirstArg(t.Child(c, "net"))),
				NetName: t.FirstArg(t.Child(c, "net_name")),
				Layer:   t.FirstArg(t.Child(c, "layer")),
				Node:    c,
			}
			if pts := t.Child(t.Child(c, "polygon"), "pts"); pts != sexp.NoNode {
				for _, xy := range t.ChildrenNamed(pts, "xy") {
					z.Points = append(z.Points, pointOf(t, xy))
				}
			}
			key := itemKey(z.UUID, c)
			v.zones[key] = z
			v.zoneOrder = append(v.zoneOrder, key)
		case "gr_line", "gr_rect", "gr_arc", "gr_circle", "gr_poly":
			if t.FirstArg(t.Child(c, "layer")) != "Edge.Cuts" {
				continue
			}
			for _, key := range []string{"start", "end", "center", "mid"} {
				if p := t.Child(c, key); p != sexp.NoNode {
					outline = append(outline, pointOf(t, p))
				}
			}
			if pts := t.Child(c, "pts"); pts != sexp.NoNode {
				for _, xy := range t.ChildrenNamed(pts, "xy") {
					outline = append(outline, pointOf(t, xy))
				}
			}
		}
	}

	// Pads name their nets by number and name; fill names from the table
	// when only the number is given.
	for _, ref := range v.compOrder {
		comp := v.components[ref]
		for i := range comp.Pads {
			if comp.Pads[i].NetName == "" {
				if n, ok := v.netsByNum[comp.Pads[i].Net]; ok {
					comp.Pads[i].NetName = n.Name
				}
			}
		}
	}

	if len(outline) > 0 {
		b := Box{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
		for _, p := range outline {
			b.MinX = math.Min(b.MinX, p.X)
			b.MinY = math.Min(b.MinY, p.Y)
			b.MaxX = math.Max(b.MaxX, p.X)
			b.MaxY = math.Max(b.MaxY, p.Y)
		}
		v.outline = &b
	}

	s := &v.summary
	s.Components = len(v.compOrder)
	s.Nets = len(v.netOrder)
	s.Segments = len(v.segOrder)
	s.Vias = len(v.viaOrder)
	s.Zones = len(v.zoneOrder)
	s.Outline = v.outline
	s.UnroutedNets = len(v.Ratsnest())
	for _, l := range s.Layers {
		if l.Type == "signal" || l.Type == "power" || l.Type == "mixed" || l.Type == "jumper" {
			s.CopperLayers++
		}
	}
	return v
}

func projectComponent(t *sexp.Tree, c sexp.NodeID) *Component {
	comp := &Component{
		Form:       t.Head(c),
		Layer:      t.FirstArg(t.Child(c, "layer")),
		UUID:       uuidOf(t, c),
		At:         placementOf(t, t.Child(c, "at")),
		Properties: make(map[string]string),
		Node:       c,
	}
	if comp.Form == "symbol" {
		comp.Library = t.FirstArg(t.Child(c, "lib_id"))
	} else {
		comp.Library = t.FirstArg(c)
	}

	for _, p := range t.ChildrenNamed(c, "property") {
		args := t.ArgValues(p)
		if len(args) >= 2 {
			comp.Properties[args[0]] = args[1]
		}
	}
	// Legacy boards spell reference and value as (fp_text reference R1 ...).
	for _, ft := range t.ChildrenNamed(c, "fp_text") {
		args := t.ArgValues(ft)
		if len(args) >= 2 {
			switch args[0] {
			case "reference":
				if _, ok := comp.Properties["Reference"]; !ok {
					comp.Properties["Reference"] = args[1]
				}
			case "value":
				if _, ok := comp.Properties["Value"]; !ok {
					comp.Properties["Value"] = args[1]
				}
			}
		}
	}
	comp.Reference = comp.Properties["Reference"]
	comp.Value = comp.Properties["Value"]
	comp.Description = comp.Properties["Description"]

	for _, p := range t.ChildrenNamed(c, "pad") {
		args := t.ArgValues(p)
		pad := Pad{
			At:     placementOf(t, t.Child(p, "at")),
			Layers: t.ArgValues(t.Child(p, "layers")),
			Node:   p,
		}
		if len(args) > 0 {
			pad.Number = args[0]
		}
		if len(args) > 1 {
			pad.Type = args[1]
		}
		if len(args) > 2 {
			pad.Shape = args[2]
		}
		if size := t.ArgValues(t.Child(p, "size")); len(size) >= 2 {
			pad.Size = Point{X: parseFloat(size[0]), Y: parseFloat(size[1])}
		}
		if net := t.ArgValues(t.Child(p, "net")); len(net) > 0 {
			pad.Net = atoi(net[0])
			if len(net) > 1 {
				pad.NetName = net[1]
			}
		}
		comp.Pads = append(comp.Pads, pad)
	}
	return comp
}

func projectLayers(t *sexp.Tree, layers sexp.NodeID) []Layer {
	var out []Layer
	for _, l := range t.Node(layers).Children {
		n := t.Node(l)
		if !n.IsList() {
			continue
		}
		vals := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			if cn := t.Node(c); cn.IsAtomic() {
				vals = append(vals, cn.Value)
			}
		}
		if len(vals) < 2 {
			continue
		}
		layer := Layer{Number: atoi(vals[0]), Name: vals[1]}
		if len(vals) > 2 {
			layer.Type = vals[2]
		}
		if len(vals) > 3 {
			layer.UserName = vals[3]
		}
		out = append(out, layer)
	}
	return out
}

func uuidOf(t *sexp.Tree, id sexp.NodeID) string {
	if u := t.Child(id, "uuid"); u != sexp.NoNode {
		return t.FirstArg(u)
	}
	return t.FirstArg(t.Child(id, "tstamp"))
}

// itemKey indexes tracks, vias and zones by uuid; items without one still get a
// unique key so they show up in listings.
func itemKey(uuid string, id sexp.NodeID) string {
	if uuid != "" {
		return uuid
	}
	return "#" + strconv.FormatUint(uint64(id), 10)
}

func pointOf(t *sexp.Tree, id sexp.NodeID) Point {
	vals := t.ArgValues(id)
	var p Point
	if len(vals) > 0 {
		p.X = parseFloat(vals[0])
	}
	if len(vals) > 1 {
		p.Y = parseFloat(vals[1])
	}
	return p
}

func placementOf(t *sexp.Tree, id sexp.NodeID) Placement {
	vals := t.ArgValues(id)
	var p Placement
	if len(vals) > 0 {
		p.X = parseFloat(vals[0])
	}
	if len(vals) > 1 {
		p.Y = parseFloat(vals[1])
	}
	if len(vals) > 2 {
		p.Angle = parseFloat(vals[2])
	}
	return p
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// =============================================================================
// QUERIES
// =============================================================================

// Component returns a copy of the component with the given reference.
func (v *View) Component(ref string) (Component, bool) {
	c, ok := v.components[ref]
	if !ok {
		return Component{}, false
	}
	var out Component
	if err := copier.CopyWithOption(&out, c, copier.Option{DeepCopy: true}); err != nil {
		return Component{}, false
	}
	return out, true
}

// ComponentNode returns the node id of a component without copying it.
func (v *View) ComponentNode(ref string) (sexp.NodeID, bool) {
	c, ok := v.components[ref]
	if !ok {
		return sexp.NoNode, false
	}
	return c.Node, true
}

// References lists component references in document order.
func (v *View) References() []string {
	return append([]string(nil), v.compOrder...)
}

// Components returns copies of every component in document order.
func (v *View) Components() []Component {
	out := make([]Component, 0, len(v.compOrder))
	for _, ref := range v.compOrder {
		c, _ := v.Component(ref)
		out = append(out, c)
	}
	return out
}

// Net looks a net up by name.
func (v *View) Net(name string) (Net, bool) {
	n, ok := v.netsByName[name]
	if !ok {
		return Net{}, false
	}
	return *n, true
}

// NetByNumber looks a net up by number.
func (v *View) NetByNumber(num int) (Net, bool) {
	n, ok := v.netsByNum[num]
	if !ok {
		return Net{}, false
	}
	return *n, true
}

// Nets returns every net in document order.
func (v *View) Nets() []Net {
	out := make([]Net, 0, len(v.netOrder))
	for _, num := range v.netOrder {
		out = append(out, *v.netsByNum[num])
	}
	return out
}

// NextNetNumber is one past the highest declared net number.
func (v *View) NextNetNumber() int {
	max := 0
	for num := range v.netsByNum {
		if num > max {
			max = num
		}
	}
	return max + 1
}

// Segment looks a track up by uuid.
func (v *View) Segment(uuid string) (Segment, bool) {
	s, ok := v.segments[uuid]
	if !ok {
		return Segment{}, false
	}
	return *s, true
}

// Segments returns every track in document order.
func (v *View) Segments() []Segment {
	out := make([]Segment, 0, len(v.segOrder))
	for _, id := range v.segOrder {
		out = append(out, *v.segments[id])
	}
	return out
}

// Via looks a via up by uuid.
func (v *View) Via(uuid string) (Via, bool) {
	via, ok := v.vias[uuid]
	if !ok {
		return Via{}, false
	}
	var out Via
	_ = copier.CopyWithOption(&out, via, copier.Option{DeepCopy: true})
	return out, true
}

// Vias returns every via in document order.
func (v *View) Vias() []Via {
	out := make([]Via, 0, len(v.viaOrder))
	for _, id := range v.viaOrder {
		via, _ := v.Via(id)
		out = append(out, via)
	}
	return out
}

// Zone looks up a zone by uuid.
func (v *View) Zone(uuid string) (Zone, bool) {
	z, ok := v.zones[uuid]
	if !ok {
		return Zone{}, false
	}
	var out Zone
	_ = copier.CopyWithOption(&out, z, copier.Option{DeepCopy: true})
	return out, true
}

// Zones returns every zone in document order.
func (v *View) Zones() []Zone {
	out := make([]Zone, 0, len(v.zoneOrder))
	for _, id := range v.zoneOrder {
		var c Zone
		_ = copier.CopyWithOption(&c, v.zones[id], copier.Option{DeepCopy: true})
		out = append(out, c)
	}
	return out
}

// Outline is the bounding box of the Edge.Cuts graphics, if any.
func (v *View) Outline() (Box, bool) {
	if v.outline == nil {
		return Box{}, false
	}
	return *v.outline, true
}

// Summary returns the board overview.
func (v *View) Summary() Summary {
	var out Summary
	_ = copier.CopyWithOption(&out, &v.summary, copier.Option{DeepCopy: true})
	return out
}

// Ratsnest lists nets that connect pads but carry no track, ordered by net
// number.
func (v *View) Ratsnest() []Unrouted {
	pads := make(map[int][]PadRef)
	for _, ref := range v.compOrder {
		for _, p := range v.components[ref].Pads {
			if p.Net == 0 {
				continue
			}
			pads[p.Net] = append(pads[p.Net], PadRef{Reference: ref, Pad: p.Number})
		}
	}
	routed := make(map[int]bool)
	for _, s := range v.segments {
		routed[s.Net] = true
	}

	var out []Unrouted
	for num, refs := range pads {
		if len(refs) < 2 || routed[num] {
			continue
		}
		n := Net{Number: num}
		if known, ok := v.netsByNum[num]; ok {
			n = *known
		}
		out = append(out, Unrouted{Net: n, Pads: refs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Net.Number < out[j].Net.Number })
	return out
}
