package ops

// Operation kinds.
const (
	KindMoveComponent       = "move_component"
	KindRotateComponent     = "rotate_component"
	KindFlipComponent       = "flip_component"
	KindDeleteComponent     = "delete_component"
	KindPlaceComponent      = "place_component"
	KindAddMountingHole     = "add_mounting_hole"
	KindReplaceComponent    = "replace_component"
	KindSetProperty         = "set_property"
	KindEditComponent       = "edit_component"
	KindCreateNet           = "create_net"
	KindAddNetClass         = "add_net_class"
	KindDeleteNet           = "delete_net"
	KindAssignNet           = "assign_net"
	KindRouteTrace          = "route_trace"
	KindAddVia              = "add_via"
	KindDeleteTrace         = "delete_trace"
	KindDeleteVia           = "delete_via"
	KindCreateZone          = "create_zone"
	KindSetBoardSize        = "set_board_size"
	KindSetBoardOutline     = "set_board_outline"
	KindAddBoardText        = "add_board_text"
	KindSetDesignRules      = "set_design_rules"
	KindSetLayerConstraints = "set_layer_constraints"
)

func prop(typ, desc string) Property {
	return Property{Type: typ, Description: desc}
}

func propDefault(typ, desc string, def any) Property {
	return Property{Type: typ, Description: desc, Default: def}
}

var uuidProp = prop("string", "uuid for the new item; generated when omitted")

func catalog() []*Spec {
	return []*Spec{
		// placement
		{
			Name:        KindMoveComponent,
			Description: "Move a component to an absolute position",
			Category:    CategoryPlacement,
			Build:       buildMoveComponent,
			Schema: Schema{
				Required: []string{"reference", "x", "y"},
				Properties: map[string]Property{
					"reference": prop("string", "reference designator, e.g. R1"),
					"x":         prop("number", "x in mm"),
					"y":         prop("number", "y in mm"),
				},
			},
		},
		{
			Name:        KindRotateComponent,
			Description: "Set the rotation of a component",
			Category:    CategoryPlacement,
			Build:       buildRotateComponent,
			Schema: Schema{
				Required: []string{"reference", "angle"},
				Properties: map[string]Property{
					"reference": prop("string", "reference designator"),
					"angle":     prop("number", "absolute rotation in degrees"),
				},
			},
		},
		{
			Name:        KindFlipComponent,
			Description: "Move a component to the opposite side of the board",
			Category:    CategoryPlacement,
			Build:       buildFlipComponent,
			Schema: Schema{
				Required:   []string{"reference"},
				Properties: map[string]Property{"reference": prop("string", "reference designator")},
			},
		},
		{
			Name:        KindDeleteComponent,
			Description: "Remove a component",
			Category:    CategoryPlacement,
			Build:       buildDeleteComponent,
			Schema: Schema{
				Required:   []string{"reference"},
				Properties: map[string]Property{"reference": prop("string", "reference designator")},
			},
		},
		{
			Name:        KindPlaceComponent,
			Description: "Place a new footprint",
			Category:    CategoryPlacement,
			Build:       buildPlaceComponent,
			Schema: Schema{
				Required: []string{"reference", "library", "x", "y"},
				Properties: map[string]Property{
					"reference": prop("string", "reference designator, must be unused"),
					"library":   prop("string", "footprint library id, e.g. Resistor_SMD:R_0603"),
					"value":     prop("string", "value property; defaults to the footprint name"),
					"x":         prop("number", "x in mm"),
					"y":         prop("number", "y in mm"),
					"angle":     propDefault("number", "rotation in degrees", 0),
					"layer":     propDefault("string", "copper layer", "F.Cu"),
					"uuid":      uuidProp,
				},
			},
		},
		{
			Name:        KindAddMountingHole,
			Description: "Add a non-plated mounting hole",
			Category:    CategoryPlacement,
			Build:       buildAddMountingHole,
			Schema: Schema{
				Required: []string{"x", "y"},
				Properties: map[string]Property{
					"x":         prop("number", "x in mm"),
					"y":         prop("number", "y in mm"),
					"drill":     propDefault("number", "hole diameter in mm", 3.2),
					"pad_dia":   propDefault("number", "keep-out pad diameter in mm", 6.0),
					"reference": prop("string", "reference designator; next free H<n> when omitted"),
					"uuid":      uuidProp,
				},
			},
		},
		{
			Name:        KindReplaceComponent,
			Description: "Swap a component's footprint, keeping its position and side",
			Category:    CategoryPlacement,
			Build:       buildReplaceComponent,
			Schema: Schema{
				Required: []string{"reference", "library"},
				Properties: map[string]Property{
					"reference": prop("string", "reference designator"),
					"library":   prop("string", "new footprint library id"),
					"value":     prop("string", "value property; defaults to the footprint name"),
					"uuid":      uuidProp,
				},
			},
		},

		// properties
		{
			Name:        KindSetProperty,
			Description: "Set or create a component property",
			Category:    CategoryProperties,
			Build:       buildSetProperty,
			Schema: Schema{
				Required: []string{"reference", "name", "value"},
				Properties: map[string]Property{
					"reference": prop("string", "reference designator"),
					"name":      prop("string", "property name, e.g. Value or MPN"),
					"value":     prop("string", "new value"),
					"uuid":      prop("string", "uuid for a created property"),
				},
			},
		},
		{
			Name:        KindEditComponent,
			Description: "Set several properties of a component in one step",
			Category:    CategoryProperties,
			Build:       buildEditComponent,
			Schema: Schema{
				Required: []string{"reference", "properties"},
				Properties: map[string]Property{
					"reference":  prop("string", "reference designator"),
					"properties": prop("object", "property name to new value"),
					"uuid":       prop("string", "seed for the uuids of created properties"),
				},
			},
		},

		// nets
		{
			Name:        KindCreateNet,
			Description: "Declare a new net",
			Category:    CategoryNets,
			Build:       buildCreateNet,
			Schema: Schema{
				Required: []string{"name"},
				Properties: map[string]Property{
					"name":   prop("string", "net name, must be unused"),
					"number": prop("integer", "net number; one past the highest when omitted"),
				},
			},
		},
		{
			Name:        KindAddNetClass,
			Description: "Declare a net class with its clearance, track and via sizes",
			Category:    CategoryNets,
			Build:       buildAddNetClass,
			Schema: Schema{
				Required: []string{"name"},
				Properties: map[string]Property{
					"name":        prop("string", "class name, must be unused"),
					"description": propDefault("string", "free text description", ""),
					"clearance":   propDefault("number", "clearance in mm", 0.2),
					"trace_width": propDefault("number", "track width in mm", 0.25),
					"via_dia":     propDefault("number", "via diameter in mm", 0.8),
					"via_drill":   propDefault("number", "via drill in mm", 0.4),
					"nets":        prop("array", "names of declared nets in the class"),
					"uuid":        uuidProp,
				},
			},
		},
		{
			Name:        KindDeleteNet,
			Description: "Remove a net declaration",
			Category:    CategoryNets,
			Build:       buildDeleteNet,
			Schema: Schema{
				Required:   []string{"name"},
				Properties: map[string]Property{"name": prop("string", "net name")},
			},
		},
		{
			Name:        KindAssignNet,
			Description: "Connect a pad to a net",
			Category:    CategoryNets,
			Build:       buildAssignNet,
			Schema: Schema{
				Required: []string{"reference", "pad", "net"},
				Properties: map[string]Property{
					"reference": prop("string", "reference designator"),
					"pad":       prop("string", "pad number"),
					"net":       prop("string", "net name"),
				},
			},
		},

		// routing
		{
			Name:        KindRouteTrace,
			Description: "Add a straight track segment",
			Category:    CategoryRouting,
			Build:       buildRouteTrace,
			Schema: Schema{
				Required: []string{"start_x", "start_y", "end_x", "end_y", "width", "net"},
				Properties: map[string]Property{
					"start_x": prop("number", "start x in mm"),
					"start_y": prop("number", "start y in mm"),
					"end_x":   prop("number", "end x in mm"),
					"end_y":   prop("number", "end y in mm"),
					"width":   prop("number", "track width in mm"),
					"layer":   propDefault("string", "copper layer", "F.Cu"),
					"net":     prop("integer", "net number"),
					"uuid":    uuidProp,
				},
			},
		},
		{
			Name:        KindAddVia,
			Description: "Add a via",
			Category:    CategoryRouting,
			Build:       buildAddVia,
			Schema: Schema{
				Required: []string{"x", "y", "net"},
				Properties: map[string]Property{
					"x":      prop("number", "x in mm"),
					"y":      prop("number", "y in mm"),
					"size":   propDefault("number", "pad diameter in mm", 0.8),
					"drill":  propDefault("number", "drill diameter in mm", 0.4),
					"layers": propDefault("array", "start and end copper layers", []string{"F.Cu", "B.Cu"}),
					"net":    prop("integer", "net number"),
					"uuid":   uuidProp,
				},
			},
		},
		{
			Name:        KindDeleteTrace,
			Description: "Remove a track segment",
			Category:    CategoryRouting,
			Build:       buildDeleteTrace,
			Schema: Schema{
				Required:   []string{"uuid"},
				Properties: map[string]Property{"uuid": prop("string", "segment uuid")},
			},
		},
		{
			Name:        KindDeleteVia,
			Description: "Remove a via",
			Category:    CategoryRouting,
			Build:       buildDeleteVia,
			Schema: Schema{
				Required:   []string{"uuid"},
				Properties: map[string]Property{"uuid": prop("string", "via uuid")},
			},
		},

		// zones
		{
			Name:        KindCreateZone,
			Description: "Add a copper pour",
			Category:    CategoryZones,
			Build:       buildCreateZone,
			Schema: Schema{
				Required: []string{"net", "layer", "points"},
				Properties: map[string]Property{
					"net":           prop("string", "net name"),
					"layer":         prop("string", "copper layer"),
					"points":        prop("array", "polygon corners as [x, y] pairs, at least 3"),
					"min_thickness": propDefault("number", "minimum fill width in mm", 0.25),
					"priority":      propDefault("integer", "fill priority", 0),
					"uuid":          uuidProp,
				},
			},
		},

		// board
		{
			Name:        KindSetBoardSize,
			Description: "Replace the board outline with a rectangle at the origin",
			Category:    CategoryBoard,
			Build:       buildSetBoardSize,
			Schema: Schema{
				Required: []string{"width", "height"},
				Properties: map[string]Property{
					"width":  prop("number", "width in mm"),
					"height": prop("number", "height in mm"),
					"uuid":   prop("string", "seed for the outline segment uuids"),
				},
			},
		},
		{
			Name:        KindSetBoardOutline,
			Description: "Replace the board outline with a closed polygon",
			Category:    CategoryBoard,
			Build:       buildSetBoardOutline,
			Schema: Schema{
				Required: []string{"points"},
				Properties: map[string]Property{
					"points": prop("array", "outline corners as [x, y] pairs, at least 3"),
					"uuid":   prop("string", "seed for the outline segment uuids"),
				},
			},
		},
		{
			Name:        KindAddBoardText,
			Description: "Add free text to the board",
			Category:    CategoryBoard,
			Build:       buildAddBoardText,
			Schema: Schema{
				Required: []string{"text", "x", "y"},
				Properties: map[string]Property{
					"text":  prop("string", "text to place"),
					"x":     prop("number", "x in mm"),
					"y":     prop("number", "y in mm"),
					"layer": propDefault("string", "layer", "F.SilkS"),
					"size":  propDefault("number", "glyph height in mm", 1.0),
					"angle": propDefault("number", "rotation in degrees", 0),
					"uuid":  uuidProp,
				},
			},
		},
		{
			Name:        KindSetDesignRules,
			Description: "Set numeric design rules in the board setup",
			Category:    CategoryBoard,
			Build:       buildSetDesignRules,
			Schema: Schema{
				Required: []string{"rules"},
				Properties: map[string]Property{
					"rules": prop("object", "rule name to value, e.g. {mask_clearance: 0.05}"),
				},
			},
		},
		{
			Name:        KindSetLayerConstraints,
			Description: "Set minimum width and clearance for one layer",
			Category:    CategoryBoard,
			Build:       buildSetLayerConstraints,
			Schema: Schema{
				Required: []string{"layer"},
				Properties: map[string]Property{
					"layer":         prop("string", "layer name"),
					"min_width":     prop("number", "minimum track width in mm"),
					"min_clearance": prop("number", "minimum clearance in mm"),
				},
			},
		},
	}
}
