package gcconfig_test

import (
	"testing"

	"github.com/analogjupiter/d-compiler/gc/gcconfig"
)

func TestParseStringDefaults(t *testing.T) {
	v := gcconfig.ParseString("")
	if v.Assertions || v.Scavenge {
		t.Fatalf("empty string should parse to all-false defaults, got %+v", v)
	}
}

func TestParseStringRecognizedKeys(t *testing.T) {
	v := gcconfig.ParseString("assertions=1,scavenge=1")
	if !v.Assertions || !v.Scavenge {
		t.Fatalf("expected both flags set, got %+v", v)
	}
}

func TestParseStringZeroValueClears(t *testing.T) {
	v := gcconfig.ParseString("assertions=1,assertions=0")
	if v.Assertions {
		t.Fatal("later occurrence of a key should win")
	}
}

func TestParseStringIgnoresUnknownKeys(t *testing.T) {
	v := gcconfig.ParseString("bogus=1,assertions=1")
	if !v.Assertions {
		t.Fatal("unknown keys must not prevent parsing recognized ones")
	}
}

func TestParseStringIgnoresMalformedFields(t *testing.T) {
	v := gcconfig.ParseString("assertions,scavenge=1")
	if v.Assertions {
		t.Fatal("a field with no '=value' must be ignored, not treated as true")
	}
	if !v.Scavenge {
		t.Fatal("a malformed field must not stop later fields from parsing")
	}
	v = gcconfig.ParseString("assertions=notanumber")
	if v.Assertions {
		t.Fatal("a non-numeric value must leave the variable at its default")
	}
}

func TestSetForTestingRestores(t *testing.T) {
	restore := gcconfig.SetForTesting(gcconfig.Vars{Assertions: true})
	if !gcconfig.Current().Assertions {
		t.Fatal("SetForTesting should have taken effect immediately")
	}
	restore()
	if gcconfig.Current().Assertions {
		t.Fatal("restore should have undone the override")
	}
}
