// Package keeprules parses external keep-rule files into the structured
// rules the evaluator consumes. Only the class-level subset used by the
// analysis is recognized; anything else is skipped, never an error.
package keeprules

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Kind classifies what a rule's class pattern targets.
type Kind int

const (
	KindClass Kind = iota
	KindInterface
	KindEnum
	KindAnnotation
	KindOther
)

// Rule is one parsed keep directive. ClassName is the external dotted
// pattern; HasMembers records that the rule carried a member block, which
// this version's evaluator does not interpret.
type Rule struct {
	ClassName  string
	Kind       Kind
	HasMembers bool
}

var kindTokens = map[string]Kind{
	"class":      KindClass,
	"interface":  KindInterface,
	"enum":       KindEnum,
	"@interface": KindAnnotation,
}

// ParseFile reads a keep-rule file. A missing file yields no rules and no
// error: keep rules are optional input.
func ParseFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseReader(f)
}

// ParseReader parses keep rules line by line. Member blocks are consumed
// but only recorded as HasMembers; unrecognized directives are skipped.
func ParseReader(r io.Reader) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(r)
	inBlock := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if inBlock {
			if strings.Contains(line, "}") {
				inBlock = false
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "-keep") {
			continue
		}

		rule, blockOpen, ok := parseKeepLine(line)
		if blockOpen && !strings.Contains(line[strings.Index(line, "{"):], "}") {
			inBlock = true
		}
		if ok {
			rules = append(rules, rule)
		}
	}
	return rules, scanner.Err()
}

func parseKeepLine(line string) (Rule, bool, bool) {
	blockOpen := strings.Contains(line, "{")
	if blockOpen {
		line = line[:strings.Index(line, "{")]
	}

	fields := strings.Fields(line)
	// Expect: -keep[...] [modifiers] <kind> <pattern> [extends ...]
	for i, tok := range fields {
		kind, isKind := kindTokens[tok]
		if !isKind {
			continue
		}
		if i+1 >= len(fields) {
			break
		}
		return Rule{
			ClassName:  fields[i+1],
			Kind:       kind,
			HasMembers: blockOpen,
		}, blockOpen, true
	}
	return Rule{}, blockOpen, false
}
