// Package resources extracts candidate class names from an unpacked
// application directory: manifest components, custom views in layout
// files, and JNI-style class strings embedded in native libraries.
// Extraction is best-effort; missing inputs yield empty lists.
package resources

import (
	"encoding/xml"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// Extractor scans one unpacked apk directory.
type Extractor struct {
	dir string
}

// NewExtractor creates an extractor rooted at dir.
func NewExtractor(dir string) *Extractor {
	return &Extractor{dir: dir}
}

// componentElements are the manifest elements whose android:name
// attribute names a class.
var componentElements = map[string]struct{}{
	"application":     {},
	"activity":        {},
	"service":         {},
	"receiver":        {},
	"provider":        {},
	"instrumentation": {},
}

// ManifestClasses returns the dotted class names referenced by the app
// manifest. A missing manifest yields no names.
func (e *Extractor) ManifestClasses() ([]string, error) {
	f, err := os.Open(filepath.Join(e.dir, "AndroidManifest.xml"))
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	var names []string
	var pkg string
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "manifest" {
			for _, attr := range start.Attr {
				if attr.Name.Local == "package" {
					pkg = attr.Value
				}
			}
			continue
		}
		if _, ok := componentElements[start.Name.Local]; !ok {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local != "name" {
				continue
			}
			if name := expandName(attr.Value, pkg); name != "" {
				names = append(names, name)
			}
		}
	}
	return dedupe(names), nil
}

// LayoutClasses returns the dotted class names of custom views and
// fragments referenced from res/layout* files.
func (e *Extractor) LayoutClasses() ([]string, error) {
	resDir := filepath.Join(e.dir, "res")
	var names []string

	err := filepath.WalkDir(resDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != resDir && !strings.HasPrefix(d.Name(), "layout") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".xml") {
			return nil
		}
		names = append(names, layoutClassesInFile(path)...)
		return nil
	})
	if err != nil {
		return nil, nil
	}
	return dedupe(names), nil
}

func layoutClassesInFile(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var names []string
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		// A dotted element name is itself a view class.
		if strings.Contains(start.Name.Local, ".") {
			names = append(names, start.Name.Local)
		}
		// <view class="..."> and <fragment android:name="...">.
		for _, attr := range start.Attr {
			switch {
			case start.Name.Local == "view" && attr.Name.Local == "class",
				start.Name.Local == "fragment" && attr.Name.Local == "name":
				if strings.Contains(attr.Value, ".") {
					names = append(names, attr.Value)
				}
			}
		}
	}
	return names
}

// jniClassPattern matches slash-separated class paths embedded as
// strings in native code, e.g. "com/example/Native".
var jniClassPattern = regexp.MustCompile(`[A-Za-z_$][A-Za-z0-9_$]*(?:/[A-Za-z_$][A-Za-z0-9_$]*)+`)

// NativeClasses returns dotted class names found as JNI-style strings in
// lib/*/*.so binaries.
func (e *Extractor) NativeClasses() ([]string, error) {
	libDir := filepath.Join(e.dir, "lib")
	var names []string

	err := filepath.WalkDir(libDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".so") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for _, run := range printableRuns(data) {
			for _, m := range jniClassPattern.FindAllString(run, -1) {
				names = append(names, strings.ReplaceAll(m, "/", "."))
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil
	}
	return dedupe(names), nil
}

// printableRuns splits binary data into NUL-terminated printable ASCII
// strings of plausible classname length.
func printableRuns(data []byte) []string {
	var runs []string
	start := -1
	for i, b := range data {
		printable := b >= 0x20 && b < 0x7f
		if printable {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= 3 {
			runs = append(runs, string(data[start:i]))
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= 3 {
		runs = append(runs, string(data[start:]))
	}
	return runs
}

func expandName(name, pkg string) string {
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "."):
		return pkg + name
	case !strings.Contains(name, "."):
		if pkg == "" {
			return ""
		}
		return pkg + "." + name
	default:
		return name
	}
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
