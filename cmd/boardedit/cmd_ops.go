package main

import (
	"fmt"
	"sort"
	"strings"

	"boardedit/internal/apperr"
	"boardedit/internal/ops"

	"github.com/spf13/cobra"
)

var opCategories = []ops.Category{
	ops.CategoryPlacement,
	ops.CategoryProperties,
	ops.CategoryNets,
	ops.CategoryRouting,
	ops.CategoryZones,
	ops.CategoryBoard,
}

// runOps lists the catalog by category, or the parameters of one operation.
func runOps(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	reg := ops.Default()

	if len(args) == 1 {
		spec := reg.Get(args[0])
		if spec == nil {
			return apperr.Validation("ops", "operation", "unknown operation %q", args[0])
		}
		fmt.Fprintln(out, titleStyle.Render(spec.Name), mutedStyle.Render("("+string(spec.Category)+")"))
		fmt.Fprintln(out, spec.Description)
		required := make(map[string]bool, len(spec.Schema.Required))
		for _, r := range spec.Schema.Required {
			required[r] = true
		}
		names := make([]string, 0, len(spec.Schema.Properties))
		for name := range spec.Schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := spec.Schema.Properties[name]
			label := name
			if required[name] {
				label += "*"
			}
			desc := p.Type + "  " + p.Description
			if p.Default != nil {
				desc += mutedStyle.Render(fmt.Sprintf(" (default %v)", p.Default))
			}
			fmt.Fprintln(out, "  "+row(label, desc))
		}
		return nil
	}

	for _, cat := range opCategories {
		specs := reg.ByCategory(cat)
		if len(specs) == 0 {
			continue
		}
		fmt.Fprintln(out, titleStyle.Render(strings.ToUpper(string(cat))))
		for _, spec := range specs {
			fmt.Fprintln(out, "  "+row(spec.Name, mutedStyle.Render(spec.Description)))
		}
	}
	fmt.Fprintf(out, "\n%d operations\n", reg.Count())
	return nil
}
