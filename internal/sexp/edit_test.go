package sexp

import (
	"strings"
	"testing"

	"boardedit/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedBoard = `(kicad_pcb
  (net 0 "")
  (general)
  (footprint "R"
    (at 1 2)
  )
)
`

func topOf(tree *Tree) NodeID {
	return tree.Node(tree.Root()).Children[0]
}

func TestSetValueChangesOnlyThatAtom(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, sampleBoard)
	fp := tree.Child(topOf(tree), "footprint")
	x := tree.Args(tree.Child(fp, "at"))[0]

	e := tree.Begin()
	require.NoError(t, e.SetValue(x, "12.5"))
	assert.True(t, e.Changed())

	want := strings.Replace(sampleBoard, "(at 10 20 90)", "(at 12.5 20 90)", 1)
	assert.Equal(t, want, Print(tree))
	assert.Equal(t, x, tree.Args(tree.Child(fp, "at"))[0], "node keeps its id")
}

func TestSetValueKeepsStringKind(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, `(property "Value" "10k")`)
	val := tree.Args(topOf(tree))[1]

	e := tree.Begin()
	require.NoError(t, e.SetValue(val, "4k7"))
	assert.Equal(t, `(property "Value" "4k7")`, Print(tree))
}

func TestSetRawRejectsNonAtoms(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "(at 1 2)")
	x := tree.Args(topOf(tree))[0]

	e := tree.Begin()
	err := e.SetRaw(x, "(nope)")
	require.ErrorIs(t, err, apperr.ErrValidation)
	err = e.SetRaw(x, "1 2")
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.False(t, e.Changed())
	assert.Equal(t, "(at 1 2)", Print(tree))
}

func TestInsertAtom(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "(at 1 2)")
	at := topOf(tree)

	e := tree.Begin()
	_, err := e.InsertAtom(at, 3, "90")
	require.NoError(t, err)
	assert.Equal(t, "(at 1 2 90)", Print(tree))

	_, err = e.InsertAtom(at, 9, "0")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAppendFormCopiesSiblingIndent(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, nestedBoard)
	fp := tree.Child(topOf(tree), "footprint")

	e := tree.Begin()
	_, err := e.AppendForm(fp, `(property "Value" "10k")`)
	require.NoError(t, err)

	want := strings.Replace(nestedBoard,
		"    (at 1 2)\n",
		"    (at 1 2)\n    (property \"Value\" \"10k\")\n", 1)
	assert.Equal(t, want, Print(tree))
}

func TestAppendFormIntoListWithoutListChildren(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, nestedBoard)
	general := tree.Child(topOf(tree), "general")

	e := tree.Begin()
	_, err := e.AppendForm(general, "(thickness 1.6)")
	require.NoError(t, err)

	want := strings.Replace(nestedBoard, "  (general)\n", "  (general\n    (thickness 1.6))\n", 1)
	assert.Equal(t, want, Print(tree))
}

func TestInsertFormSingleLine(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "(a)")
	e := tree.Begin()
	_, err := e.AppendForm(topOf(tree), "(b 1)")
	require.NoError(t, err)
	assert.Equal(t, "(a (b 1))", Print(tree))
}

func TestInsertIntoEmptyRoot(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "")
	e := tree.Begin()
	_, err := e.AppendForm(tree.Root(), "(kicad_pcb)")
	require.NoError(t, err)
	assert.Equal(t, "(kicad_pcb)", Print(tree))
}

func TestInsertFormRejectsBadFragments(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, nestedBoard)
	top := topOf(tree)
	before := tree.Len()

	e := tree.Begin()
	_, err := e.AppendForm(top, "(a) (b)")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = e.AppendForm(top, "(a")
	require.ErrorIs(t, err, apperr.ErrSyntax)
	_, err = e.AppendForm(tree.Args(tree.Child(top, "net"))[0], "(a)")
	require.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, before, tree.Len())
	assert.Equal(t, nestedBoard, Print(tree))
}

func TestReplaceFormKeepsPosition(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, nestedBoard)
	fp := tree.Child(topOf(tree), "footprint")
	at := tree.Child(fp, "at")

	e := tree.Begin()
	_, err := e.ReplaceForm(fp, at, "(at 5 6 180)")
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(nestedBoard, "(at 1 2)", "(at 5 6 180)", 1), Print(tree))
	assert.False(t, tree.Has(at))
}

func TestAbortRestoresEverything(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, sampleBoard)
	top := topOf(tree)
	fp := tree.Child(top, "footprint")
	ids := tree.Subtree(top)

	e := tree.Begin()
	require.NoError(t, e.SetValue(tree.Args(tree.Child(fp, "at"))[0], "99"))
	_, err := e.AppendForm(top, `(net 2 "VCC")`)
	require.NoError(t, err)
	require.NoError(t, e.Remove(top, tree.Child(top, "general")))
	_, err = e.InsertAtom(tree.Child(fp, "at"), 1, "7")
	require.NoError(t, err)
	require.NotEqual(t, sampleBoard, Print(tree))

	e.Abort()
	assert.Equal(t, sampleBoard, Print(tree))
	assert.Equal(t, ids, tree.Subtree(top), "ids survive abort")
	assert.False(t, e.Changed())
}

func TestSnapshotRestoreAfterRemove(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, sampleBoard)
	top := topOf(tree)
	fp := tree.Child(top, "footprint")
	pad := tree.Child(fp, "pad")

	e := tree.Begin()
	require.NoError(t, e.Remove(top, fp))
	snap := e.Snapshot()
	assert.False(t, tree.Has(fp))
	assert.False(t, tree.Has(pad))
	assert.NotContains(t, Print(tree), "footprint")

	tree.Restore(snap)
	assert.Equal(t, sampleBoard, Print(tree))
	assert.True(t, tree.Has(pad))
	assert.Equal(t, fp, tree.Child(top, "footprint"))
}

func TestSnapshotRestoreRemovesCreatedNodes(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, nestedBoard)
	top := topOf(tree)

	e := tree.Begin()
	id, err := e.AppendForm(top, "(zone (polygon (pts (xy 0 0))))")
	require.NoError(t, err)
	snap := e.Snapshot()
	assert.Greater(t, len(snap.Created), 1)

	tree.Restore(snap)
	assert.False(t, tree.Has(id))
	assert.Equal(t, nestedBoard, Print(tree))
}

func TestIDsAreNeverReused(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, nestedBoard)
	top := topOf(tree)
	var max NodeID
	tree.Walk(func(n *Node) bool {
		if n.ID > max {
			max = n.ID
		}
		return true
	})

	e := tree.Begin()
	require.NoError(t, e.Remove(top, tree.Child(top, "general")))
	id, err := e.AppendForm(top, "(general)")
	require.NoError(t, err)
	assert.Greater(t, id, max)
}

func TestCloneIsolation(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, sampleBoard)
	clone := tree.Clone()
	top := topOf(clone)
	fp := clone.Child(top, "footprint")

	e := clone.Begin()
	require.NoError(t, e.SetValue(clone.Args(clone.Child(fp, "at"))[0], "0"))
	_, err := e.AppendForm(top, `(net 2 "VCC")`)
	require.NoError(t, err)

	assert.Equal(t, sampleBoard, Print(tree))
	assert.NotEqual(t, sampleBoard, Print(clone))

	// Writes on the original do not leak into the clone either.
	e2 := tree.Begin()
	require.NoError(t, e2.Remove(topOf(tree), tree.Child(topOf(tree), "general")))
	assert.Contains(t, Print(clone), "(general")
}
