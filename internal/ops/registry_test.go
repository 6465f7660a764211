package ops

import (
	"errors"
	"testing"

	"boardedit/internal/apperr"
	"boardedit/internal/document"
)

func nopBuild(args map[string]any) (document.Binder, error) {
	return func(d *document.Document) (document.Operation, error) { return nil, nil }, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d operations", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	spec := &Spec{
		Name:        "test_op",
		Description: "A test operation",
		Category:    CategoryBoard,
		Build:       nopBuild,
	}
	if err := reg.Register(spec); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("test_op")
	if got == nil {
		t.Fatal("Get returned nil for registered operation")
	}
	if got.Name != "test_op" {
		t.Errorf("got name %q, want %q", got.Name, "test_op")
	}
	if !reg.Has("test_op") || reg.Has("other") {
		t.Error("Has disagrees with Get")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	spec := &Spec{Name: "dupe", Category: CategoryBoard, Build: nopBuild}

	if err := reg.Register(spec); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := reg.Register(spec)
	if !errors.Is(err, ErrOpAlreadyRegistered) {
		t.Fatalf("expected ErrOpAlreadyRegistered, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		spec    *Spec
		wantErr error
	}{
		{name: "empty name", spec: &Spec{Name: "", Build: nopBuild}, wantErr: ErrOpNameEmpty},
		{name: "nil build", spec: &Spec{Name: "test", Build: nil}, wantErr: ErrBuildNil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.spec)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestByCategory(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha"} {
		reg.MustRegister(&Spec{Name: name, Category: CategoryNets, Build: nopBuild})
	}
	reg.MustRegister(&Spec{Name: "other", Category: CategoryBoard, Build: nopBuild})

	nets := reg.ByCategory(CategoryNets)
	if len(nets) != 2 {
		t.Fatalf("expected 2 net operations, got %d", len(nets))
	}
	if nets[0].Name != "alpha" {
		t.Errorf("expected alpha first, got %s", nets[0].Name)
	}
}

func TestCatalogIsComplete(t *testing.T) {
	reg := NewCatalog()

	want := []string{
		KindMoveComponent, KindRotateComponent, KindFlipComponent, KindDeleteComponent,
		KindPlaceComponent, KindAddMountingHole, KindSetProperty, KindCreateNet,
		KindDeleteNet, KindAssignNet, KindRouteTrace, KindAddVia, KindDeleteTrace,
		KindDeleteVia, KindCreateZone, KindSetBoardSize, KindSetBoardOutline, KindAddBoardText,
		KindReplaceComponent, KindEditComponent, KindAddNetClass, KindSetDesignRules, KindSetLayerConstraints,
	}
	if reg.Count() != len(want) {
		t.Errorf("catalog has %d operations, want %d: %v", reg.Count(), len(want), reg.Names())
	}
	for _, kind := range want {
		spec := reg.Get(kind)
		if spec == nil {
			t.Errorf("catalog is missing %s", kind)
			continue
		}
		for _, req := range spec.Schema.Required {
			if _, ok := spec.Schema.Properties[req]; !ok {
				t.Errorf("%s: required %q has no schema property", kind, req)
			}
		}
	}
	if Default() != Default() {
		t.Error("Default should return the same registry")
	}
}

func TestBindErrors(t *testing.T) {
	reg := NewCatalog()

	_, err := reg.Bind("nonexistent", nil)
	if !errors.Is(err, ErrOpNotFound) || !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown kind: got %v", err)
	}

	_, err = reg.Bind(KindMoveComponent, map[string]any{"reference": "R1"})
	if !errors.Is(err, ErrMissingRequiredArg) {
		t.Errorf("missing arg: got %v", err)
	}
	if e, ok := apperr.As(err); !ok || e.Param != "x" {
		t.Errorf("missing arg should name x, got %+v", e)
	}

	_, err = reg.Bind(KindMoveComponent, map[string]any{"reference": "R1", "x": []int{1}, "y": 2})
	if !errors.Is(err, ErrInvalidArgType) {
		t.Errorf("bad type: got %v", err)
	}
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(`
description: tidy up
steps:
  - op: move_component
    args: {reference: R1, x: 10.5, y: 20}
  - op: create_zone
    args:
      net: GND
      layer: B.Cu
      points: [[0, 0], [10, 0], [10, 10]]
`))
	if err != nil {
		t.Fatalf("ParseScript failed: %v", err)
	}
	if s.Description != "tidy up" || len(s.Steps) != 2 {
		t.Fatalf("unexpected script: %+v", s)
	}

	binders, err := NewCatalog().BindScript(s)
	if err != nil {
		t.Fatalf("BindScript failed: %v", err)
	}
	if len(binders) != 2 {
		t.Errorf("expected 2 binders, got %d", len(binders))
	}

	if _, err := ParseScript([]byte("steps:\n  - args: {}\n")); !errors.Is(err, ErrOpNameEmpty) {
		t.Errorf("step without op: got %v", err)
	}
	if _, err := ParseScript([]byte("stepz: []\n")); err == nil {
		t.Error("unknown key should be rejected")
	}
	empty, err := ParseScript(nil)
	if err != nil || len(empty.Steps) != 0 {
		t.Errorf("empty script: %+v, %v", empty, err)
	}
}

func TestNumberSpelling(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{10, "10"},
		{10.5, "10.5"},
		{0.0, "0"},
		{-0.25, "-0.25"},
		{1e-7, "0.0000001"},
		{"  7.50 ", "7.5"},
	}
	for _, tt := range tests {
		n, err := numberFrom(tt.in)
		if err != nil {
			t.Errorf("numberFrom(%v): %v", tt.in, err)
			continue
		}
		if n.Raw != tt.want {
			t.Errorf("numberFrom(%v) = %q, want %q", tt.in, n.Raw, tt.want)
		}
	}

	if _, err := ParseNumber("NaN"); err == nil {
		t.Error("NaN should be rejected")
	}
	if n, err := ParseNumber("10.50"); err != nil || n.Raw != "10.50" || n.Value != 10.5 {
		t.Errorf("ParseNumber kept %+v, %v", n, err)
	}
}

func TestLayers(t *testing.T) {
	if got := NormalizeLayer("F.Silkscreen"); got != "F.SilkS" {
		t.Errorf("NormalizeLayer = %q", got)
	}
	if got := NormalizeLayer("In1.Cu"); got != "In1.Cu" {
		t.Errorf("NormalizeLayer should pass unknown names through, got %q", got)
	}
	for from, to := range layerFlip {
		if FlipLayer(to) != from {
			t.Errorf("flip of %s is not an involution", from)
		}
	}
	if FlipLayer("Edge.Cuts") != "Edge.Cuts" {
		t.Error("unsided layers must not flip")
	}
}
