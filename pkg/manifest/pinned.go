package manifest

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/matzehuels/depstage/pkg/version"
)

// reqLineRE splits a pinned-list line into a name and the remaining
// constraint expression.
var reqLineRE = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)\s*(.*)$`)

// Pinned parses pinned-list manifests: one requirement per line, an
// optional comma-separated constraint list after the name.
//
//	requests==2.31.0
//	urllib3>=1.26,<2.0
//	tabulate
//
// Comments ("#"), blank lines, option lines ("-r other.txt") and URL
// requirements are skipped; they are directives for other tools, not
// package declarations.
type Pinned struct{}

// Type returns the format identifier.
func (p *Pinned) Type() string { return "pinned" }

// Supports reports whether the filename looks like a pinned-list manifest.
// Pinned is also the fallback format, so this is intentionally broad.
func (p *Pinned) Supports(name string) bool {
	return strings.HasSuffix(name, ".txt") || strings.HasPrefix(name, "requirements")
}

// Parse reads the pinned-list file at path and appends its requirements
// to m in declaration order.
func (p *Pinned) Parse(path string, m *Manifest, startOrder int) error {
	f, err := os.Open(path)
	if err != nil {
		return parseError(path, 0, "", "cannot open manifest")
	}
	defer f.Close()

	order := startOrder
	lineNo := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if skippable(line) {
			continue
		}
		if idx := strings.Index(line, "#"); idx > 0 {
			line = strings.TrimSpace(line[:idx])
		}

		match := reqLineRE.FindStringSubmatch(line)
		if match == nil {
			return parseError(path, lineNo, line, "not a requirement declaration")
		}
		name := Normalize(match[1])
		rest := strings.TrimSpace(match[2])

		if rest == "" {
			m.Requirements = append(m.Requirements, Requirement{Name: name, Order: order})
			order++
			continue
		}

		constraints, err := parseConstraintList(rest)
		if err != nil {
			return parseError(path, lineNo, line, "invalid constraint")
		}
		if conflictingPins(constraints) {
			return parseError(path, lineNo, line, "conflicting pins on one line")
		}
		for _, c := range constraints {
			m.Requirements = append(m.Requirements, Requirement{Name: name, Constraint: c, Order: order})
			order++
		}
	}
	if err := scanner.Err(); err != nil {
		return parseError(path, lineNo, "", "read failed")
	}
	return nil
}

// parseConstraintList parses a comma-separated constraint expression into
// individual constraints ("<2.0,>=1.26" yields two).
func parseConstraintList(s string) ([]version.Constraint, error) {
	var out []version.Constraint
	for _, part := range strings.Split(s, ",") {
		c, err := version.ParseConstraint(part)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// conflictingPins reports whether a single line declares two different "=="
// versions. Cross-line conflicts are a resolution concern; same-line ones
// are a manifest authoring error.
func conflictingPins(constraints []version.Constraint) bool {
	var pinned *version.Version
	for i, c := range constraints {
		if c.Op != version.OpEqual {
			continue
		}
		if pinned != nil && !pinned.Equal(c.Version) {
			return true
		}
		pinned = &constraints[i].Version
	}
	return false
}

// skippable reports whether a pinned-list line carries no requirement.
func skippable(line string) bool {
	return line == "" ||
		strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "-") ||
		strings.Contains(line, "://") ||
		strings.HasPrefix(line, "git+")
}
