package reachability

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/715d/reachmark/internal/keeprules"
	"github.com/715d/reachmark/pkg/dexmodel"
)

// Resources supplies classnames extracted from the application package
// (manifest, layout files, native libraries), all in external dotted
// form. Implementations live outside this package; tests use fakes.
type Resources interface {
	ManifestClasses() ([]string, error)
	LayoutClasses() ([]string, error)
	NativeClasses() ([]string, error)
}

// Options configures an evaluation run.
type Options struct {
	Config *Config

	// Rules are parsed external keep rules. Only concrete class and
	// interface patterns are evaluated in this version.
	Rules []keeprules.Rule

	// NoOptimizeAnnotations are caller-supplied annotation type names
	// merged with the configured keep_annotations.
	NoOptimizeAnnotations []string

	// Resources provides apk-derived classname lists; nil disables the
	// resource stage.
	Resources Resources
}

// Evaluator runs every evidence source once over the program, marking
// reachable entities. The final state is order-independent across
// sources (marks are monotone and idempotent); each source's internal
// iteration order follows the program's stable scope order.
type Evaluator struct {
	program *dexmodel.Program
	marker  *Marker
	cfg     *Config
	rules   []keeprules.Rule
	annos   map[string]struct{}
	res     Resources

	seedCount int
}

// NewEvaluator creates an evaluator over the program and marker.
func NewEvaluator(p *dexmodel.Program, mk *Marker, opts Options) *Evaluator {
	cfg := opts.Config
	if cfg == nil {
		cfg = &Config{}
	}
	return &Evaluator{
		program: p,
		marker:  mk,
		cfg:     cfg,
		rules:   opts.Rules,
		annos:   annotationSet(cfg.KeepAnnotations, opts.NoOptimizeAnnotations),
		res:     opts.Resources,
	}
}

// SeedCount returns the number of entities marked by the seed stage of
// the last Run.
func (e *Evaluator) SeedCount() int { return e.seedCount }

type stage struct {
	name string
	run  func() error
}

// Run evaluates all evidence sources as an ordered pipeline of stages
// over the shared marker state.
func (e *Evaluator) Run() error {
	stages := []stage{
		{"annotations", e.keepAnnotated},
		{"class_members", e.keepClassMembers},
		{"methods", e.keepMethods},
		{"resources", e.keepResourceClasses},
		{"reflected_packages", e.keepReflectedPackages},
		{"keep_rules", e.keepRulePatterns},
		{"seeds", e.keepSeeds},
	}
	for _, s := range stages {
		start := time.Now()
		if err := s.run(); err != nil {
			return fmt.Errorf("evidence stage %s: %w", s.name, err)
		}
		slog.Debug("evidence stage done", "stage", s.name, "dur", time.Since(start))
	}
	return nil
}

// keepAnnotated marks every class, method, and field carrying one of the
// configured annotation types. Annotation keeps are exact: they never
// cascade to the rest of the class.
func (e *Evaluator) keepAnnotated() error {
	if len(e.annos) == 0 {
		return nil
	}
	carries := func(annotations []string) bool {
		for _, a := range annotations {
			if _, ok := e.annos[a]; ok {
				return true
			}
		}
		return false
	}
	for _, cls := range e.program.Classes {
		if carries(cls.Annotations) {
			e.marker.MarkEntityDirect(cls)
		}
		for _, m := range cls.Methods {
			if carries(m.Annotations) {
				e.marker.MarkEntityDirect(m)
			}
		}
		for _, f := range cls.Fields {
			if carries(f.Annotations) {
				e.marker.MarkEntityDirect(f)
			}
		}
	}
	return nil
}

// keepClassMembers handles the keep_class_members configuration. Each
// rule is a class-name substring immediately followed by a field-name
// substring; the split point for a given class is the longest rule
// prefix contained in its descriptor. The first class in scope order
// with a matching static field wins and ends the scan for that rule.
func (e *Evaluator) keepClassMembers() error {
	for _, rule := range e.cfg.KeepClassMembers {
	classes:
		for _, cls := range e.program.Classes {
			rem, ok := splitMemberRule(rule, cls.Name)
			if !ok || rem == "" {
				continue
			}
			for _, f := range cls.Fields {
				if !f.IsStatic() {
					continue
				}
				if strings.Contains(f.Name, rem) {
					e.marker.MarkEntityDirect(f)
					e.marker.MarkDirect(cls)
					slog.Debug("kept class member", "rule", rule, "field", f.Descriptor())
					break classes
				}
			}
		}
	}
	return nil
}

// splitMemberRule finds the longest prefix of rule contained in the
// class descriptor and returns the remainder as the field substring.
func splitMemberRule(rule, descriptor string) (string, bool) {
	for i := len(rule); i > 0; i-- {
		if strings.Contains(descriptor, rule[:i]) {
			return rule[i:], true
		}
	}
	return "", false
}

// keepMethods marks every method whose unqualified name equals one of
// the configured keep_methods entries. The mark is by name, external,
// and applies to the method only.
func (e *Evaluator) keepMethods() error {
	if len(e.cfg.KeepMethods) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(e.cfg.KeepMethods))
	for _, m := range e.cfg.KeepMethods {
		keep[m] = struct{}{}
	}
	for _, cls := range e.program.Classes {
		for _, m := range cls.Methods {
			if _, ok := keep[m.Name]; ok {
				e.marker.MarkEntityByName(m, false)
			}
		}
	}
	return nil
}

// keepResourceClasses marks classes named in the app's manifest, layout
// files, and native libraries. These references are external: the
// optimizer cannot rewrite them, so they pin both existence and name.
func (e *Evaluator) keepResourceClasses() error {
	if e.res == nil {
		return nil
	}
	sources := []struct {
		name string
		get  func() ([]string, error)
	}{
		{"manifest", e.res.ManifestClasses},
		{"layout", e.res.LayoutClasses},
		{"native_lib", e.res.NativeClasses},
	}
	for _, src := range sources {
		names, err := src.get()
		if err != nil {
			return fmt.Errorf("%s classnames: %w", src.name, err)
		}
		for _, name := range names {
			cls, ok := e.program.ResolveDot(name)
			if !ok {
				slog.Debug("resource class not in program", "source", src.name, "name", name)
				continue
			}
			slog.Debug("kept resource class", "source", src.name, "name", name)
			e.marker.MarkByName(cls, false)
		}
	}
	return nil
}

// keepReflectedPackages marks every class in a configured package
// prefix, and every class anywhere whose superclass chain reaches one,
// by name. Reflection in those packages may address classes by string,
// so the whole closure is kept most conservatively.
//
// The superclass walk is an explicit loop with a visited set: chains in
// malformed input can be arbitrarily deep or cyclic.
func (e *Evaluator) keepReflectedPackages() error {
	if len(e.cfg.KeepPackages) == 0 {
		return nil
	}
	prefixes := make([]string, len(e.cfg.KeepPackages))
	for i, pkg := range e.cfg.KeepPackages {
		prefixes[i] = packagePrefix(pkg)
	}

	reflected := make(map[*dexmodel.Class]struct{})
	for _, cls := range e.program.Classes {
		for _, prefix := range prefixes {
			if strings.HasPrefix(cls.Name, prefix) {
				reflected[cls] = struct{}{}
				break
			}
		}
	}

	inReflected := func(cls *dexmodel.Class) bool {
		visited := make(map[*dexmodel.Class]struct{})
		for cur := cls; cur != nil; {
			if _, ok := reflected[cur]; ok {
				return true
			}
			if _, seen := visited[cur]; seen {
				return false
			}
			visited[cur] = struct{}{}
			next, ok := e.program.Superclass(cur)
			if !ok {
				return false
			}
			cur = next
		}
		return false
	}

	for _, cls := range e.program.Classes {
		if inReflected(cls) {
			reflected[cls] = struct{}{}
			slog.Debug("kept reflected package class", "name", cls.Name)
			e.marker.MarkByName(cls, false)
		}
	}
	return nil
}

// keepRulePatterns evaluates concrete class and interface patterns from
// the external keep rules against every class. Wildcard patterns,
// patterns of length <= 2, and member qualifiers are out of scope for
// this version; rules carrying a member block still match by their class
// pattern.
func (e *Evaluator) keepRulePatterns() error {
	var patterns []string
	for _, r := range e.rules {
		if r.Kind != keeprules.KindClass && r.Kind != keeprules.KindInterface {
			continue
		}
		if r.ClassName == "" || len(r.ClassName) <= 2 || HasWildcard(r.ClassName) {
			continue
		}
		pat := TranslatePattern(r.ClassName)
		slog.Debug("adding keep-rule pattern", "pattern", pat)
		patterns = append(patterns, pat)
	}
	if len(patterns) == 0 {
		return nil
	}

	matched := 0
	for _, cls := range e.program.Classes {
		for _, pat := range patterns {
			if TypeMatches(pat, cls.Name) {
				e.marker.MarkDirect(cls)
				matched++
				break
			}
		}
	}
	slog.Debug("keep-rule class patterns evaluated", "matched_classes", matched)
	return nil
}

// keepSeeds ingests the configured seed allowlist, if any.
func (e *Evaluator) keepSeeds() error {
	if e.cfg.SeedsFile == "" {
		return nil
	}
	n, err := InitSeedClasses(e.cfg.SeedsFile, e.marker)
	if err != nil {
		return err
	}
	e.seedCount = n
	return nil
}

// InitReachable runs the full evaluation followed by the first
// code-driven recompute, establishing the state every later optimization
// pass consults. Returns the evaluator for stat queries.
func InitReachable(p *dexmodel.Program, mk *Marker, opts Options) (*Evaluator, error) {
	e := NewEvaluator(p, mk, opts)
	if err := e.Run(); err != nil {
		return nil, err
	}
	RecomputeFromCode(p, mk)
	return e, nil
}
