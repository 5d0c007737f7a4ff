// Package tsproto defines the wire shapes and protocol constants spoken
// between this adapter and the TypeScript/JavaScript analysis back-end
// ("tsserver"). Types here mirror the back-end's own request/response
// JSON field-for-field; no behavior lives in this package.
package tsproto

import "fmt"

// APIVersion is an orderable tsserver protocol version.
type APIVersion struct {
	Major, Minor, Patch int
}

// Well-known thresholds named by the spec this module implements.
var (
	V3_4_0 = APIVersion{3, 4, 0} //nolint:revive,stylecheck // matches back-end version naming
	V4_4_0 = APIVersion{4, 4, 0} //nolint:revive,stylecheck // matches back-end version naming
)

// String renders the version in dotted form.
func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other.
func (v APIVersion) Compare(other APIVersion) int {
	switch {
	case v.Major != other.Major:
		return cmp(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmp(v.Minor, other.Minor)
	default:
		return cmp(v.Patch, other.Patch)
	}
}

// AtLeast reports whether v >= other.
func (v APIVersion) AtLeast(other APIVersion) bool {
	return v.Compare(other) >= 0
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
