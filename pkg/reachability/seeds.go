package reachability

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/715d/reachmark/pkg/dexmodel"
)

// InitSeedClasses reads a seed allowlist file and marks each resolvable
// entry as a seed. A missing or unreadable file is zero seeds, not an
// error. Returns the number of entities marked.
func InitSeedClasses(path string, mk *Marker) (int, error) {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		slog.Debug("seed file not readable, ignoring", "path", path, "error", err)
		return 0, nil
	}
	defer f.Close()

	count, err := ReadSeeds(f, mk)
	if err != nil {
		return count, err
	}
	slog.Debug("read seed classes", "path", path, "count", count, "dur", time.Since(start))
	return count, nil
}

// ReadSeeds marks one seed per line of r. Lines with a member qualifier
// (":") or nested-class marker ("$") are skipped without error: this
// version does not resolve member-qualified or inner-class entries.
// Unresolvable names are skipped and logged.
func ReadSeeds(r io.Reader, mk *Marker) (int, error) {
	count := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.ContainsAny(line, ":$") {
			continue
		}
		if mk.MarkNameSeed(dexmodel.DotToDescriptor(line)) {
			count++
		} else {
			slog.Debug("seed class not in program", "name", line)
		}
	}
	return count, scanner.Err()
}
