// Package version implements the version algebra used by the resolution
// engine: parsing, ordering, and constraint matching.
//
// Versions follow a PEP-440-like shape: an optional epoch ("1!2.0.0"), a
// dotted numeric release, and an optional pre/post tag ("1.2.0rc1"). Releases
// compare numerically segment by segment; tags break ties lexicographically,
// with an untagged version ranking above any tagged one of the same release
// ("1.2.0" > "1.2.0rc1").
package version

import (
	"strconv"
	"strings"

	"github.com/matzehuels/depstage/pkg/errors"
)

// Version is a parsed package version.
type Version struct {
	Epoch   int    // Optional leading epoch (the "1" in "1!2.0.0")
	Release []int  // Dotted numeric release segments
	Tag     string // Trailing pre/post tag, lowercased ("rc1", "post2")
	Raw     string // Original text as written
}

// Parse parses a version string. It is lenient about tags: anything after
// the numeric release is kept as an opaque tag rather than rejected, since
// indexes publish a long tail of unusual suffixes.
func Parse(s string) (Version, error) {
	raw := s
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Version{}, errors.New(errors.ErrCodeInternal, "empty version string")
	}

	v := Version{Raw: raw}

	if idx := strings.IndexByte(s, '!'); idx >= 0 {
		epoch, err := strconv.Atoi(s[:idx])
		if err != nil {
			return Version{}, errors.New(errors.ErrCodeInternal, "invalid epoch in version %q", raw)
		}
		v.Epoch = epoch
		s = s[idx+1:]
	}

	segments := strings.Split(s, ".")
	for i, seg := range segments {
		numEnd := 0
		for numEnd < len(seg) && seg[numEnd] >= '0' && seg[numEnd] <= '9' {
			numEnd++
		}
		if numEnd == 0 {
			// Segment starts with a letter: everything from here is tag.
			v.Tag = strings.Join(segments[i:], ".")
			break
		}
		n, err := strconv.Atoi(seg[:numEnd])
		if err != nil {
			return Version{}, errors.New(errors.ErrCodeInternal, "invalid version %q", raw)
		}
		v.Release = append(v.Release, n)
		if numEnd < len(seg) {
			// Trailing letters on a numeric segment ("0rc1").
			v.Tag = seg[numEnd:]
			if i < len(segments)-1 {
				v.Tag += "." + strings.Join(segments[i+1:], ".")
			}
			break
		}
	}

	if len(v.Release) == 0 {
		return Version{}, errors.New(errors.ErrCodeInternal, "invalid version %q", raw)
	}
	return v, nil
}

// MustParse parses a version string and panics on failure.
// Intended for tests and literals.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as originally written.
func (v Version) String() string { return v.Raw }

// segment returns the i-th release segment, or 0 when the release is
// shorter ("1.2" and "1.2.0" compare equal).
func (v Version) segment(i int) int {
	if i < len(v.Release) {
		return v.Release[i]
	}
	return 0
}

// Compare orders two versions. It returns -1 if v < o, 0 if equal, +1 if v > o.
func (v Version) Compare(o Version) int {
	if v.Epoch != o.Epoch {
		if v.Epoch < o.Epoch {
			return -1
		}
		return 1
	}

	n := max(len(v.Release), len(o.Release))
	for i := 0; i < n; i++ {
		a, b := v.segment(i), o.segment(i)
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}

	// Same release: an untagged version outranks any tagged one, otherwise
	// tags order lexicographically.
	switch {
	case v.Tag == o.Tag:
		return 0
	case v.Tag == "":
		return 1
	case o.Tag == "":
		return -1
	case v.Tag < o.Tag:
		return -1
	default:
		return 1
	}
}

// Less reports whether v orders before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Equal reports whether v and o denote the same version.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }
