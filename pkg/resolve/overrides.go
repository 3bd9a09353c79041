package resolve

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/depstage/pkg/errors"
	"github.com/matzehuels/depstage/pkg/manifest"
	"github.com/matzehuels/depstage/pkg/version"
)

// Override is one post-resolution correction rule. Some package pairs
// declare constraints too loosely to catch their own incompatibilities;
// an override repins one of them when both sides of a condition hold.
//
//	[[rule]]
//	package = "urllib3"
//	op = ">="
//	version = "2.0.0"
//	  [rule.requires]
//	  name = "botocore"
//	  op = "<"
//	  version = "1.30.0"
//	  pin = "1.31.0"
//
// reads: when urllib3 resolved to >=2.0.0 and botocore resolved to
// <1.30.0, repin botocore to 1.31.0.
type Override struct {
	Package  string       `toml:"package"`
	Op       string       `toml:"op"`
	Version  string       `toml:"version"`
	Requires OverrideWhen `toml:"requires"`
}

// OverrideWhen is the conditional side of an override rule.
type OverrideWhen struct {
	Name    string `toml:"name"`
	Op      string `toml:"op"`
	Version string `toml:"version"`
	Pin     string `toml:"pin"`
}

type overridesFile struct {
	Rules []Override `toml:"rule"`
}

// LoadOverrides reads override rules from a TOML file. A missing path
// yields no rules, not an error, so the overrides file stays optional.
func LoadOverrides(path string) ([]Override, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "cannot read overrides file %s", path)
	}

	var f overridesFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "malformed overrides file %s", path)
	}
	return f.Rules, nil
}

// ApplyOverrides repins packages in result according to the rules. It runs
// once after resolution, before fetch, and mutates result in place. Rules
// whose packages are absent from the result are ignored; malformed rules
// are skipped with a warning rather than failing the run.
func ApplyOverrides(result *Result, rules []Override, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}

	for _, rule := range rules {
		trigger := result.Package(manifest.Normalize(rule.Package))
		target := result.Package(manifest.Normalize(rule.Requires.Name))
		if trigger == nil || target == nil {
			continue
		}

		if !overrideMatch(trigger.Version, rule.Op, rule.Version, logger) {
			continue
		}
		if !overrideMatch(target.Version, rule.Requires.Op, rule.Requires.Version, logger) {
			continue
		}

		logger.Warn("override repinned package",
			"package", target.Name, "from", target.Version, "to", rule.Requires.Pin,
			"because", rule.Package+rule.Op+rule.Version)
		target.Version = rule.Requires.Pin
		target.Checksum = "" // The repinned artifact has a different digest.
	}
}

func overrideMatch(have, op, want string, logger *log.Logger) bool {
	c, err := version.ParseConstraint(op + want)
	if err != nil {
		logger.Warn("skipping malformed override rule", "op", op, "version", want)
		return false
	}
	v, err := version.Parse(have)
	if err != nil {
		return false
	}
	return c.Match(v)
}
