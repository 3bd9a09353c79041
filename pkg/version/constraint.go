package version

import (
	"regexp"
	"sort"
	"strings"

	"github.com/matzehuels/depstage/pkg/errors"
)

// Op is a version comparison operator.
type Op string

// Supported comparison operators.
const (
	OpAny        Op = "any" // No constraint
	OpEqual      Op = "=="
	OpNotEqual   Op = "!="
	OpLess       Op = "<"
	OpLessEq     Op = "<="
	OpGreater    Op = ">"
	OpGreaterEq  Op = ">="
	OpCompatible Op = "~=" // Compatible release
)

// Constraint is a single operator/version pair ("<=2.1.0").
// The zero value matches any version.
type Constraint struct {
	Op      Op
	Version Version
}

var constraintRE = regexp.MustCompile(`^\s*(any|[!~=><]+)\s*(.*?)\s*$`)

// ParseConstraint parses a constraint expression such as "==1.2.0" or
// ">=2.0". A bare version with no operator is rejected. Wildcard pins
// ("==1.2.*") convert to compatible-release constraints with the wildcard
// zeroed ("~=1.2.0").
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == string(OpAny) {
		return Constraint{Op: OpAny}, nil
	}

	m := constraintRE.FindStringSubmatch(s)
	if m == nil {
		return Constraint{}, errors.New(errors.ErrCodeParse, "invalid constraint %q", s)
	}

	op := Op(m[1])
	verText := m[2]

	switch op {
	case OpAny:
		return Constraint{Op: OpAny}, nil
	case OpEqual, OpNotEqual, OpLess, OpLessEq, OpGreater, OpGreaterEq, OpCompatible:
	default:
		return Constraint{}, errors.New(errors.ErrCodeParse, "unknown operator %q in constraint %q", m[1], s)
	}

	if strings.Contains(verText, "*") {
		verText = strings.ReplaceAll(verText, "*", "0")
		if op == OpEqual {
			op = OpCompatible
		}
	}

	v, err := Parse(verText)
	if err != nil {
		return Constraint{}, errors.New(errors.ErrCodeParse, "invalid version in constraint %q", s)
	}
	return Constraint{Op: op, Version: v}, nil
}

// Any reports whether the constraint matches every version.
func (c Constraint) Any() bool { return c.Op == OpAny || c.Op == "" }

// String formats the constraint as written in a manifest.
func (c Constraint) String() string {
	if c.Any() {
		return string(OpAny)
	}
	return string(c.Op) + c.Version.Raw
}

// Match reports whether v satisfies the constraint.
func (c Constraint) Match(v Version) bool {
	if c.Any() {
		return true
	}
	cmp := v.Compare(c.Version)
	switch c.Op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpLess:
		return cmp < 0
	case OpLessEq:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEq:
		return cmp >= 0
	case OpCompatible:
		return c.matchCompatible(v)
	}
	return false
}

// matchCompatible implements the compatible-release operator: the candidate
// must be at least the constraint version and share its release prefix up to
// the second-to-last written segment.
func (c Constraint) matchCompatible(v Version) bool {
	if v.Compare(c.Version) < 0 {
		return false
	}
	switch {
	case len(c.Version.Release) > 2:
		return v.segment(0) == c.Version.segment(0) && v.segment(1) == c.Version.segment(1)
	case len(c.Version.Release) > 1:
		return v.segment(0) == c.Version.segment(0)
	}
	return true
}

// Set is a conjunction of constraints on a single package: a version
// matches the set when it matches every constraint.
type Set []Constraint

// Match reports whether v satisfies every constraint in the set.
func (s Set) Match(v Version) bool {
	for _, c := range s {
		if !c.Match(v) {
			return false
		}
	}
	return true
}

// Pin returns the single pinned version if the set contains exactly one
// equality constraint and nothing that could contradict it further. This is
// the quick path for lock manifests: a pinned requirement resolves without
// consulting any index.
func (s Set) Pin() (Version, bool) {
	var pin *Version
	for i, c := range s {
		if c.Op != OpEqual {
			continue
		}
		if pin != nil && !pin.Equal(c.Version) {
			return Version{}, false
		}
		pin = &s[i].Version
	}
	if pin == nil || !s.Match(*pin) {
		return Version{}, false
	}
	return *pin, true
}

// Satisfiable reports whether any version could in principle satisfy the
// set, without consulting availability. The check is interval intersection:
//
//   - two different "==" pins contradict each other;
//   - a pin must match every other constraint;
//   - the effective lower bound (from >, >=, ~=) must not cross the
//     effective upper bound (from <, <=);
//   - two "~=" constraints with disjoint release prefixes contradict.
//
// "!=" exclusions never make a set unsatisfiable on their own since the
// version space is unbounded.
func (s Set) Satisfiable() bool {
	var (
		pin             *Version
		lower, upper    *Version
		lowerStrict     bool
		upperStrict     bool
		compatibilities []Constraint
	)

	for i, c := range s {
		switch c.Op {
		case OpEqual:
			if pin != nil && !pin.Equal(c.Version) {
				return false
			}
			pin = &s[i].Version
		case OpGreater, OpGreaterEq, OpCompatible:
			if lower == nil || lower.Less(c.Version) {
				lower = &s[i].Version
				lowerStrict = c.Op == OpGreater
			}
			if c.Op == OpCompatible {
				compatibilities = append(compatibilities, c)
			}
		case OpLess, OpLessEq:
			if upper == nil || c.Version.Less(*upper) {
				upper = &s[i].Version
				upperStrict = c.Op == OpLess
			}
		}
	}

	if pin != nil {
		return s.Match(*pin)
	}

	if lower != nil && upper != nil {
		cmp := lower.Compare(*upper)
		if cmp > 0 || (cmp == 0 && (lowerStrict || upperStrict)) {
			return false
		}
	}

	// Disjoint compatible-release prefixes cannot both hold.
	for i := 0; i < len(compatibilities); i++ {
		for j := i + 1; j < len(compatibilities); j++ {
			a, b := compatibilities[i], compatibilities[j]
			if !a.matchCompatible(b.Version) && !b.matchCompatible(a.Version) {
				return false
			}
		}
	}
	return true
}

// Strings returns the constraint expressions in declaration order,
// for error messages.
func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.String()
	}
	return out
}

// MaxMatching returns the highest version among candidates that satisfies
// the whole set. Candidates that fail to parse are skipped. The second
// return is false when nothing matches.
func (s Set) MaxMatching(candidates []string) (Version, bool) {
	var matched []Version
	for _, raw := range candidates {
		v, err := Parse(raw)
		if err != nil {
			continue
		}
		if s.Match(v) {
			matched = append(matched, v)
		}
	}
	if len(matched) == 0 {
		return Version{}, false
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Less(matched[j]) })
	return matched[len(matched)-1], true
}
