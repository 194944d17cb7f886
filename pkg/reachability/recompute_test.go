package reachability

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/reachmark/pkg/dexmodel"
)

func TestRecomputeFromCode(t *testing.T) {
	bridge := &dexmodel.Class{Name: "Lcom/example/Bridge;"}
	bridge.AddMethod("nativeInit", dexmodel.AccPrivate|dexmodel.AccNative)
	plainMethod := bridge.AddMethod("plain", dexmodel.AccPublic)

	ordinary := &dexmodel.Class{Name: "Lcom/example/Ordinary;"}
	ordinary.AddMethod("work", dexmodel.AccPublic)

	program := dexmodel.NewProgram([]*dexmodel.Class{bridge, ordinary})
	table := NewTable(program)
	marker := NewMarker(program, table)

	RecomputeFromCode(program, marker)

	st := table.State(bridge)
	require.True(t, st.StringReferenced(true))
	require.False(t, st.CanDelete())
	// A code-internal name reference does not pin the name.
	require.True(t, st.CanRename())
	// The class-level mark cascades to declared members.
	require.True(t, table.State(plainMethod).StringReferenced(true))

	require.True(t, table.State(ordinary).CanDelete())
	require.True(t, table.State(ordinary).CanRename())
}

func TestRecomputeIsRepeatable(t *testing.T) {
	bridge := &dexmodel.Class{Name: "Lcom/example/Bridge;"}
	bridge.AddMethod("nativeInit", dexmodel.AccNative)

	program := dexmodel.NewProgram([]*dexmodel.Class{bridge})
	table := NewTable(program)
	marker := NewMarker(program, table)

	// Re-running after each pass re-asserts the fact and never retracts
	// anything.
	for range 3 {
		RecomputeFromCode(program, marker)
		require.False(t, table.State(bridge).CanDelete())
		require.True(t, table.State(bridge).CanRename())
	}
}

func TestRecomputeManyClassesConcurrently(t *testing.T) {
	var classes []*dexmodel.Class
	for i := range 200 {
		cls := &dexmodel.Class{Name: fmt.Sprintf("Lgen/C%d;", i)}
		cls.AddMethod("nativeHook", dexmodel.AccNative)
		classes = append(classes, cls)
	}
	program := dexmodel.NewProgram(classes)
	table := NewTable(program)
	marker := NewMarker(program, table)

	RecomputeFromCode(program, marker)

	for _, cls := range program.Classes {
		require.False(t, table.State(cls).CanDelete(), "%s", cls.Name)
	}
}