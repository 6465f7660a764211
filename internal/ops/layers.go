package ops

// layerFlip maps each sided layer to its counterpart on the other side.
var layerFlip = map[string]string{
	"F.Cu":    "B.Cu",
	"B.Cu":    "F.Cu",
	"F.SilkS": "B.SilkS",
	"B.SilkS": "F.SilkS",
	"F.Fab":   "B.Fab",
	"B.Fab":   "F.Fab",
	"F.CrtYd": "B.CrtYd",
	"B.CrtYd": "F.CrtYd",
	"F.Mask":  "B.Mask",
	"B.Mask":  "F.Mask",
	"F.Paste": "B.Paste",
	"B.Paste": "F.Paste",
	"F.Adhes": "B.Adhes",
	"B.Adhes": "F.Adhes",
}

// layerAliases maps display names to the names stored in files.
var layerAliases = map[string]string{
	"F.Silkscreen":  "F.SilkS",
	"B.Silkscreen":  "B.SilkS",
	"F.Adhesive":    "F.Adhes",
	"B.Adhesive":    "B.Adhes",
	"F.Courtyard":   "F.CrtYd",
	"B.Courtyard":   "B.CrtYd",
	"User.Drawings": "Dwgs.User",
	"User.Comments": "Cmts.User",
	"User.Eco1":     "Eco1.User",
	"User.Eco2":     "Eco2.User",
}

// NormalizeLayer maps a display name to its stored name.
func NormalizeLayer(name string) string {
	if n, ok := layerAliases[name]; ok {
		return n
	}
	return name
}

// FlipLayer returns the layer on the opposite side, or name itself for
// layers without a side.
func FlipLayer(name string) string {
	if n, ok := layerFlip[name]; ok {
		return n
	}
	return name
}

// sideLayer returns the front or back variant of a technical layer for items
// placed on copper layer cu, e.g. sideLayer("B.Cu", "SilkS") is "B.SilkS".
func sideLayer(cu, tech string) string {
	if len(cu) > 2 && cu[:2] == "B." {
		return "B." + tech
	}
	return "F." + tech
}
