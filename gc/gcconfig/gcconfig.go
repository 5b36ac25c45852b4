// Package gcconfig parses the allocator's GODEBUG-style tunable string,
// grounded directly on runtime1.go's parsedebugvars: a comma-separated
// list of key=value pairs, read once from an environment variable
// ("SDGC" here, in place of the teacher's "GODEBUG").
package gcconfig

import (
	"os"
	"strconv"
	"strings"
)

// Vars holds the tunables this allocator reads from SDGC. The zero value
// is the default configuration.
type Vars struct {
	// Assertions enables expensive invariant re-checks (full bitmap
	// rescans to cross-check the cached LFR, etc.) on top of the
	// always-on contract checks in gc/gcassert.
	Assertions bool

	// Scavenge enables returning freed-and-dirty pages to the OS page
	// backing layer. Disabled by default since the OS page-backing layer
	// is an out-of-scope collaborator here (spec.md §1); a host wiring
	// one in flips this on.
	Scavenge bool
}

// Parse reads and parses the SDGC environment variable. It never fails:
// an unrecognized key is ignored and a malformed value leaves the
// variable at its default, exactly like the teacher's GODEBUG parser
// ("if i < 0 { continue }" for a key with no '=value').
func Parse() Vars {
	return ParseString(os.Getenv("SDGC"))
}

// active holds the tunables parsed once at process start, exactly like the
// teacher's own package-level "debug" struct populated by
// parsedebugvars. Consulted by gc/block's hot allocation paths, so it is
// parsed once rather than re-reading the environment on every call.
var active = Parse()

// Current returns the tunables parsed from SDGC at process start.
func Current() Vars {
	return active
}

// SetForTesting overrides the active tunables and returns a restore
// function, for tests that need to exercise the Assertions-gated paths
// without mutating the process environment.
func SetForTesting(v Vars) (restore func()) {
	prev := active
	active = v
	return func() { active = prev }
}

// ParseString parses debug s the same way Parse parses SDGC; split out
// for testability without mutating the process environment.
func ParseString(s string) Vars {
	var v Vars
	targets := map[string]*bool{
		"assertions": &v.Assertions,
		"scavenge":   &v.Scavenge,
	}

	for s != "" {
		var field string
		if i := strings.IndexByte(s, ','); i < 0 {
			field, s = s, ""
		} else {
			field, s = s[:i], s[i+1:]
		}

		i := strings.IndexByte(field, '=')
		if i < 0 {
			continue
		}
		key, value := field[:i], field[i+1:]

		target, ok := targets[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		*target = n != 0
	}
	return v
}
