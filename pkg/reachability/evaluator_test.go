package reachability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	"github.com/715d/reachmark/internal/keeprules"
	"github.com/715d/reachmark/pkg/dexmodel"
)

func evalProgram(t *testing.T, classes []*dexmodel.Class, opts Options) (*dexmodel.Program, *Table) {
	t.Helper()
	program := dexmodel.NewProgram(classes)
	table := NewTable(program)
	marker := NewMarker(program, table)
	e := NewEvaluator(program, marker, opts)
	require.NoError(t, e.Run())
	return program, table
}

func TestKeepAnnotated(t *testing.T) {
	cls := &dexmodel.Class{
		Name:        "Lcom/example/Annotated;",
		Annotations: []string{"Lcom/example/DoNotStrip;"},
	}
	plainMethod := cls.AddMethod("plain", dexmodel.AccPublic)
	keptMethod := cls.AddMethod("kept", dexmodel.AccPublic)
	keptMethod.Annotations = []string{"Lcom/example/NoOpt;"}
	keptField := cls.AddField("keptField", dexmodel.AccStatic)
	keptField.Annotations = []string{"Lcom/example/DoNotStrip;"}

	other := &dexmodel.Class{Name: "Lcom/example/Plain;"}

	_, table := evalProgram(t, []*dexmodel.Class{cls, other}, Options{
		Config:                &Config{KeepAnnotations: []string{"com.example.DoNotStrip"}},
		NoOptimizeAnnotations: []string{"com.example.NoOpt"},
	})

	require.True(t, table.State(cls).TypeReferenced())
	require.True(t, table.State(keptMethod).TypeReferenced())
	require.True(t, table.State(keptField).TypeReferenced())

	// Annotation keeps are exact, not cascading: the unannotated method
	// stays deletable even though its class is kept.
	require.True(t, table.State(plainMethod).CanDelete())
	require.True(t, table.State(other).CanDelete())
}

func TestKeepClassMembersFirstMatchWins(t *testing.T) {
	foo1 := &dexmodel.Class{Name: "LFoo1;"}
	foo1Field := foo1.AddField("mBarHolder", dexmodel.AccStatic)
	foo1Other := foo1.AddField("unrelated", dexmodel.AccStatic)

	foo2 := &dexmodel.Class{Name: "LFoo2;"}
	foo2Field := foo2.AddField("mBarHolder", dexmodel.AccStatic)

	_, table := evalProgram(t, []*dexmodel.Class{foo1, foo2}, Options{
		Config: &Config{KeepClassMembers: []string{"FooBar"}},
	})

	require.True(t, table.State(foo1Field).TypeReferenced())
	require.True(t, table.State(foo1).TypeReferenced())
	// The class mark cascades.
	require.True(t, table.State(foo1Other).TypeReferenced())

	// First match in scope order wins; Foo2 is untouched.
	require.True(t, table.State(foo2).CanDelete())
	require.True(t, table.State(foo2Field).CanDelete())
}

func TestKeepClassMembersSkipsInstanceFields(t *testing.T) {
	cls := &dexmodel.Class{Name: "LFoo;"}
	instance := cls.AddField("mBar", 0)

	_, table := evalProgram(t, []*dexmodel.Class{cls}, Options{
		Config: &Config{KeepClassMembers: []string{"FooBar"}},
	})

	require.True(t, table.State(cls).CanDelete())
	require.True(t, table.State(instance).CanDelete(), "only static fields participate")
}

func TestKeepMethodsExactName(t *testing.T) {
	a := &dexmodel.Class{Name: "Lcom/a/A;"}
	onCreateA := a.AddMethod("onCreate", dexmodel.AccPublic)
	onCreate2 := a.AddMethod("onCreate2", dexmodel.AccPublic)

	b := &dexmodel.Class{Name: "Lcom/b/B;"}
	onCreateB := b.AddMethod("onCreate", dexmodel.AccPublic)
	onCreateView := b.AddMethod("onCreateView", dexmodel.AccPublic)

	_, table := evalProgram(t, []*dexmodel.Class{a, b}, Options{
		Config: &Config{KeepMethods: []string{"onCreate"}},
	})

	// Every method literally named onCreate, across all classes.
	require.True(t, table.State(onCreateA).StringReferenced(false))
	require.True(t, table.State(onCreateB).StringReferenced(false))
	require.False(t, table.State(onCreateA).CanRename())

	// Exact match only, and no cascade beyond the method.
	require.True(t, table.State(onCreate2).CanDelete())
	require.True(t, table.State(onCreateView).CanDelete())
	require.True(t, table.State(a).CanDelete())
}

type fakeResources struct {
	manifest []string
	layout   []string
	native   []string
}

func (f fakeResources) ManifestClasses() ([]string, error) { return f.manifest, nil }
func (f fakeResources) LayoutClasses() ([]string, error)   { return f.layout, nil }
func (f fakeResources) NativeClasses() ([]string, error)   { return f.native, nil }

func TestKeepResourceClasses(t *testing.T) {
	activity := &dexmodel.Class{Name: "Lcom/example/MainActivity;"}
	onCreate := activity.AddMethod("onCreate", dexmodel.AccPublic)
	view := &dexmodel.Class{Name: "Lcom/example/FancyView;"}
	native := &dexmodel.Class{Name: "Lcom/example/JniBridge;"}
	untouched := &dexmodel.Class{Name: "Lcom/example/Untouched;"}

	_, table := evalProgram(t, []*dexmodel.Class{activity, view, native, untouched}, Options{
		Resources: fakeResources{
			manifest: []string{"com.example.MainActivity", "com.example.NotInProgram"},
			layout:   []string{"com.example.FancyView"},
			native:   []string{"com.example.JniBridge"},
		},
	})

	for _, cls := range []*dexmodel.Class{activity, view, native} {
		st := table.State(cls)
		require.True(t, st.StringReferenced(false), "%s", cls.Name)
		require.False(t, st.CanDelete())
		require.False(t, st.CanRename(), "resource references pin the name")
	}
	// Cascade to members.
	require.True(t, table.State(onCreate).StringReferenced(false))
	// Unknown names are silently skipped.
	require.True(t, table.State(untouched).CanDelete())
}

func TestKeepReflectedPackagesClosure(t *testing.T) {
	// A is in a kept package with an unresolved superclass; B extends A
	// from a package that matches no prefix; C extends B.
	a := &dexmodel.Class{Name: "Lcom/x/A;", SuperName: "Landroid/app/Activity;"}
	b := &dexmodel.Class{Name: "Lcom/y/B;", SuperName: "Lcom/x/A;"}
	c := &dexmodel.Class{Name: "Lcom/y/C;", SuperName: "Lcom/y/B;"}
	unrelated := &dexmodel.Class{Name: "Lcom/y/Unrelated;"}

	_, table := evalProgram(t, []*dexmodel.Class{a, b, c, unrelated}, Options{
		Config: &Config{KeepPackages: []string{"com.x"}},
	})

	require.True(t, table.State(a).StringReferenced(false))
	require.True(t, table.State(b).StringReferenced(false), "subclass joins the closure")
	require.True(t, table.State(c).StringReferenced(false), "closure is transitive")
	require.True(t, table.State(unrelated).CanDelete())
}

func TestKeepReflectedPackagesCyclicHierarchy(t *testing.T) {
	// Adversarial input: a superclass cycle outside any kept package
	// must terminate and stay unmarked.
	p := &dexmodel.Class{Name: "Lcom/y/P;", SuperName: "Lcom/y/Q;"}
	q := &dexmodel.Class{Name: "Lcom/y/Q;", SuperName: "Lcom/y/P;"}
	kept := &dexmodel.Class{Name: "Lcom/x/Kept;"}

	_, table := evalProgram(t, []*dexmodel.Class{p, q, kept}, Options{
		Config: &Config{KeepPackages: []string{"com.x"}},
	})

	require.True(t, table.State(p).CanDelete())
	require.True(t, table.State(q).CanDelete())
	require.True(t, table.State(kept).StringReferenced(false))
}

func TestKeepReflectedPackagesPackageBoundary(t *testing.T) {
	inside := &dexmodel.Class{Name: "Lcom/x/Inside;"}
	// Same string prefix but different package: com.xtra is not com.x.
	lookalike := &dexmodel.Class{Name: "Lcom/xtra/Lookalike;"}

	_, table := evalProgram(t, []*dexmodel.Class{inside, lookalike}, Options{
		Config: &Config{KeepPackages: []string{"com.x"}},
	})

	require.True(t, table.State(inside).StringReferenced(false))
	require.True(t, table.State(lookalike).CanDelete())
}

func TestKeepRulePatterns(t *testing.T) {
	foo := &dexmodel.Class{Name: "Lcom/example/Foo;"}
	fooMethod := foo.AddMethod("work", dexmodel.AccPublic)
	iface := &dexmodel.Class{Name: "Lcom/example/Iface;", Access: dexmodel.AccInterface}
	ab := &dexmodel.Class{Name: "Lab;"}
	withMembers := &dexmodel.Class{Name: "Lcom/example/WithMembers;"}
	wild := &dexmodel.Class{Name: "Lcom/example/Wild;"}

	_, table := evalProgram(t, []*dexmodel.Class{foo, iface, ab, withMembers, wild}, Options{
		Rules: []keeprules.Rule{
			{ClassName: "com.example.Foo", Kind: keeprules.KindClass},
			{ClassName: "com.example.Iface", Kind: keeprules.KindInterface},
			// Trivially short patterns are never consulted.
			{ClassName: "ab", Kind: keeprules.KindClass},
			// Member qualifiers are unsupported; the class pattern still counts.
			{ClassName: "com.example.WithMembers", Kind: keeprules.KindClass, HasMembers: true},
			// Wildcard patterns are out of scope for this version.
			{ClassName: "com.example.Wi*", Kind: keeprules.KindClass},
			// Non-class kinds are ignored.
			{ClassName: "com.example.Wild", Kind: keeprules.KindEnum},
		},
	})

	require.True(t, table.State(foo).TypeReferenced())
	require.True(t, table.State(fooMethod).TypeReferenced(), "keep-rule matches cascade")
	require.True(t, table.State(iface).TypeReferenced())
	require.True(t, table.State(ab).CanDelete())
	require.True(t, table.State(withMembers).TypeReferenced())
	require.True(t, table.State(wild).CanDelete())
}

func TestEvaluatorEndToEnd(t *testing.T) {
	archive, err := os.ReadFile(filepath.Join("testdata", "app.txtar"))
	require.NoError(t, err)
	dir := t.TempDir()
	for _, f := range txtar.Parse(archive).Files {
		path := filepath.Join(dir, f.Name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, f.Data, 0o644))
	}

	program, err := dexmodel.LoadSnapshot(filepath.Join(dir, "program.yaml"))
	require.NoError(t, err)

	cfg, err := LoadConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	cfg.SeedsFile = filepath.Join(dir, cfg.SeedsFile)

	rules, err := keeprules.ParseFile(filepath.Join(dir, "rules.pro"))
	require.NoError(t, err)

	table := NewTable(program)
	marker := NewMarker(program, table)
	eval, err := InitReachable(program, marker, Options{Config: cfg, Rules: rules})
	require.NoError(t, err)
	require.Equal(t, 1, eval.SeedCount())

	report := BuildReport(program, table)
	require.ElementsMatch(t, []string{
		"Lcom/app/MainActivity;", // keep rule
		"Lcom/app/SeedMe;",       // seed
		"Lcom/app/NativeBridge;", // native method owner
		"Lcom/refl/Base;",        // reflected package
		"Lcom/app/ReflChild;",    // reflected closure via Base
		"Lcom/app/ConfigHolder;", // keep_class_members
	}, report.CantDelete)
	require.ElementsMatch(t, []string{
		"Lcom/app/SeedMe;",
		"Lcom/refl/Base;",
		"Lcom/app/ReflChild;",
	}, report.CantRename)
	require.Equal(t, []string{"Lcom/app/SeedMe;"}, report.MustKeep)

	// keep_methods marked the method itself, by name, externally.
	cb, ok := program.Resolve("Lcom/app/EntryCallback;")
	require.True(t, ok)
	require.True(t, table.State(cb).CanDelete(), "method keep does not cascade to the class")
	require.False(t, table.State(cb.Methods[0]).CanRename())

	// The native bridge owner was marked from code: deletable no, renameable yes.
	nb, ok := program.Resolve("Lcom/app/NativeBridge;")
	require.True(t, ok)
	require.False(t, table.State(nb).CanDelete())
	require.True(t, table.State(nb).CanRename())
}
