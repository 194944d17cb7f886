package dexmodel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSnapshot = `
classes:
  - name: com.example.Main
    super: android.app.Activity
    access: [public]
    annotations: [com.example.DoNotStrip]
    methods:
      - name: onCreate
        access: [public]
      - name: nativeInit
        access: [private, native]
    fields:
      - name: sInstance
        access: [static]
  - name: Lcom/example/Helper;
    access: [public, final]
`

func TestParseSnapshot(t *testing.T) {
	program, err := ParseSnapshot([]byte(sampleSnapshot))
	require.NoError(t, err)
	require.Len(t, program.Classes, 2)

	main := program.Classes[0]
	require.Equal(t, "Lcom/example/Main;", main.Name, "dotted names are normalized")
	require.Equal(t, "Landroid/app/Activity;", main.SuperName)
	require.Equal(t, []string{"Lcom/example/DoNotStrip;"}, main.Annotations)
	require.Len(t, main.Methods, 2)
	require.True(t, main.Methods[1].IsNative())
	require.Len(t, main.Fields, 1)
	require.True(t, main.Fields[0].IsStatic())

	helper := program.Classes[1]
	require.Equal(t, "Lcom/example/Helper;", helper.Name, "descriptor names pass through")
	require.True(t, helper.Access.Has(AccFinal))

	// Scope order is the snapshot order.
	got, ok := program.Resolve("Lcom/example/Main;")
	require.True(t, ok)
	require.Same(t, main, got)
}

func TestParseSnapshotErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			input:   "classes: [",
			wantErr: "parsing snapshot",
		},
		{
			name:    "empty class name",
			input:   "classes:\n  - super: LFoo;\n",
			wantErr: "empty name",
		},
		{
			name:    "duplicate class",
			input:   "classes:\n  - name: LFoo;\n  - name: LFoo;\n",
			wantErr: "duplicate class",
		},
		{
			name:    "unknown access flag",
			input:   "classes:\n  - name: LFoo;\n    access: [sparkly]\n",
			wantErr: "unknown access flag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSnapshot([]byte(tt.input))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSnapshot), 0o644))

	program, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, program.Classes, 2)

	_, err = LoadSnapshot(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "reading snapshot")
}
