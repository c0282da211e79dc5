package versions

import "github.com/Masterminds/semver/v3"

// IsNewer reports whether candidate is strictly newer than current. Versions
// that are not semver, such as development builds, are never newer.
func IsNewer(candidate, current string) bool {
	c, err := semver.NewVersion(candidate)
	if err != nil {
		return false
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		return false
	}
	return c.GreaterThan(cur)
}
