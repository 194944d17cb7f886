package reachability

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/715d/reachmark/pkg/dexmodel"
)

// Config is the run configuration of the evaluator. Package prefixes and
// annotation names are given in external dotted form; file paths are
// resolved relative to the working directory.
type Config struct {
	// APKDir, when set, enables manifest, layout, and native-library
	// classname scanning rooted at that directory.
	APKDir string `yaml:"apk_dir,omitempty"`

	// KeepPackages lists package prefixes whose classes, and all their
	// subclasses, are treated as reflected and kept by name.
	KeepPackages []string `yaml:"keep_packages,omitempty"`

	// KeepAnnotations lists annotation type names; any entity carrying
	// one is kept.
	KeepAnnotations []string `yaml:"keep_annotations,omitempty"`

	// KeepClassMembers lists class-substring+field-substring rules for
	// keeping individual static fields and their classes.
	KeepClassMembers []string `yaml:"keep_class_members,omitempty"`

	// KeepMethods lists literal, unqualified method names to keep.
	KeepMethods []string `yaml:"keep_methods,omitempty"`

	// SeedsFile is the optional seed allowlist; a missing file means
	// zero seeds.
	SeedsFile string `yaml:"seeds,omitempty"`

	// KeepRulesFile is the optional external keep-rule file.
	KeepRulesFile string `yaml:"keep_rules,omitempty"`

	// ReportBase is the base path of the three report files.
	ReportBase string `yaml:"report,omitempty"`
}

// LoadConfig reads a yaml run configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// packagePrefix normalizes a configured package name into the descriptor
// prefix classes are matched against: "com.x" -> "Lcom/x/". Prefixes
// already in descriptor form are kept as given.
func packagePrefix(pkg string) string {
	if strings.HasPrefix(pkg, "L") && strings.Contains(pkg, "/") {
		return pkg
	}
	p := "L" + strings.ReplaceAll(pkg, ".", "/")
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// annotationSet translates external annotation names into a descriptor
// lookup set.
func annotationSet(names ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, group := range names {
		for _, n := range group {
			if n == "" {
				continue
			}
			if dexmodel.IsClassDescriptor(n) {
				set[n] = struct{}{}
				continue
			}
			set[dexmodel.DotToDescriptor(n)] = struct{}{}
		}
	}
	return set
}
