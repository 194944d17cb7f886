package dexmodel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Snapshot is the on-disk description of an analyzed program. The graph
// itself is produced upstream by the binary reader; this loader only
// rebuilds it from the serialized form.
type Snapshot struct {
	Classes []SnapshotClass `yaml:"classes"`
}

// SnapshotClass describes one class. Name and Super accept either the
// internal descriptor form or the external dotted form.
type SnapshotClass struct {
	Name        string           `yaml:"name"`
	Super       string           `yaml:"super,omitempty"`
	Access      []string         `yaml:"access,omitempty"`
	Annotations []string         `yaml:"annotations,omitempty"`
	Methods     []SnapshotMember `yaml:"methods,omitempty"`
	Fields      []SnapshotMember `yaml:"fields,omitempty"`
}

// SnapshotMember describes one method or field declared on a class.
type SnapshotMember struct {
	Name        string   `yaml:"name"`
	Access      []string `yaml:"access,omitempty"`
	Annotations []string `yaml:"annotations,omitempty"`
}

var accessNames = map[string]Access{
	"public":    AccPublic,
	"private":   AccPrivate,
	"protected": AccProtected,
	"static":    AccStatic,
	"final":     AccFinal,
	"interface": AccInterface,
	"native":    AccNative,
	"abstract":  AccAbstract,
}

// LoadSnapshot reads a program snapshot file and builds the entity graph.
func LoadSnapshot(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot builds the entity graph from serialized snapshot bytes.
func ParseSnapshot(data []byte) (*Program, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return BuildProgram(&snap)
}

// BuildProgram converts a snapshot into a Program, normalizing names to
// descriptor form and wiring member back-references.
func BuildProgram(snap *Snapshot) (*Program, error) {
	classes := make([]*Class, 0, len(snap.Classes))
	seen := make(map[string]struct{}, len(snap.Classes))

	for _, sc := range snap.Classes {
		if sc.Name == "" {
			return nil, fmt.Errorf("snapshot class with empty name")
		}
		name := normalizeName(sc.Name)
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate class %s in snapshot", name)
		}
		seen[name] = struct{}{}

		access, err := parseAccess(sc.Access)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", name, err)
		}

		cls := &Class{
			Name:        name,
			Access:      access,
			Annotations: normalizeNames(sc.Annotations),
		}
		if sc.Super != "" {
			cls.SuperName = normalizeName(sc.Super)
		}

		for _, sm := range sc.Methods {
			macc, err := parseAccess(sm.Access)
			if err != nil {
				return nil, fmt.Errorf("method %s.%s: %w", name, sm.Name, err)
			}
			cls.Methods = append(cls.Methods, &Method{
				Name:        sm.Name,
				Owner:       cls,
				Access:      macc,
				Annotations: normalizeNames(sm.Annotations),
			})
		}
		for _, sf := range sc.Fields {
			facc, err := parseAccess(sf.Access)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", name, sf.Name, err)
			}
			cls.Fields = append(cls.Fields, &Field{
				Name:        sf.Name,
				Owner:       cls,
				Access:      facc,
				Annotations: normalizeNames(sf.Annotations),
			})
		}

		classes = append(classes, cls)
	}

	return NewProgram(classes), nil
}

func normalizeName(name string) string {
	if IsClassDescriptor(name) {
		return name
	}
	return DotToDescriptor(name)
}

func normalizeNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = normalizeName(n)
	}
	return out
}

func parseAccess(flags []string) (Access, error) {
	var acc Access
	for _, f := range flags {
		bit, ok := accessNames[f]
		if !ok {
			return 0, fmt.Errorf("unknown access flag %q", f)
		}
		acc |= bit
	}
	return acc, nil
}
