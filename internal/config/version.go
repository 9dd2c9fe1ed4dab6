package config

import "strings"

// VersionKind tags the form of the requested version.
type VersionKind int

const (
	// Unspecified means the version input was empty or absent.
	Unspecified VersionKind = iota
	// Latest is the "latest" sentinel: resolve the newest release.
	Latest
	// Exact is a single version such as "450.0.0".
	Exact
	// Range is any other constraint such as ">= 400.0.0".
	Range
)

// LatestSentinel is the version input value that requests the newest release.
const LatestSentinel = "latest"

// AnyVersion is the unconstrained range satisfied by every release.
const AnyVersion = "> 0.0.0"

func (k VersionKind) String() string {
	switch k {
	case Unspecified:
		return "unspecified"
	case Latest:
		return "latest"
	case Exact:
		return "exact"
	case Range:
		return "range"
	default:
		return "unknown"
	}
}

// VersionSpec is the parsed version input.
// Value holds the raw text for Exact and Range and is empty otherwise.
type VersionSpec struct {
	Kind  VersionKind
	Value string
}

// ParseVersionSpec classifies a raw version input.
// No syntax validation happens here: anything that is not empty, "latest" or
// a plain dotted version is passed on verbatim as a Range.
func ParseVersionSpec(raw string) VersionSpec {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return VersionSpec{Kind: Unspecified}
	case raw == LatestSentinel:
		return VersionSpec{Kind: Latest}
	case isPlainVersion(raw):
		return VersionSpec{Kind: Exact, Value: raw}
	default:
		return VersionSpec{Kind: Range, Value: raw}
	}
}

// String returns the input form of the spec.
func (v VersionSpec) String() string {
	switch v.Kind {
	case Unspecified:
		return ""
	case Latest:
		return LatestSentinel
	default:
		return v.Value
	}
}

// IsExplicit reports whether the caller asked for something other than
// "latest" or nothing at all.
func (v VersionSpec) IsExplicit() bool {
	return v.Kind == Exact || v.Kind == Range
}

// isPlainVersion reports whether s looks like "1", "1.2" or "1.2.3",
// optionally prefixed with "v".
func isPlainVersion(s string) bool {
	s = strings.TrimPrefix(s, "v")
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
