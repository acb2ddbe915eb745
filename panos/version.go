package panos

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is the software version a firewall reports during negotiation,
// e.g. "10.1.3" or "9.0.4-h2". The hotfix suffix is ignored for ordering.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Parse parses a firewall version string. The patch component is optional,
// and any "-suffix" (hotfix markers and the like) is discarded.
func Parse(s string) (*Version, error) {
	base := s
	if i := strings.IndexByte(base, '-'); i >= 0 {
		base = base[:i]
	}

	parts := strings.Split(base, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("panos: cannot parse version %q", s)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("panos: cannot parse version %q", s)
		}
		nums[i] = n
	}

	return &Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParse is Parse for static version literals. It panics on a bad input.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Older reports whether v is strictly older than o.
func (v *Version) Older(o *Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

func (v *Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
