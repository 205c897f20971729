package updater

import (
	"strings"

	"golang.org/x/mod/semver"
)

// normalizeVersion ensures a leading "v" so semver accepts it
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// IsNewer reports whether tag is newer than current. Versions that are not
// semantic versions are compared for inequality.
func IsNewer(current, tag string) bool {
	c, t := normalizeVersion(current), normalizeVersion(tag)
	if semver.IsValid(c) && semver.IsValid(t) {
		return semver.Compare(t, c) > 0
	}
	return t != c
}

// SelectAsset picks the asset built for abi with the artifact suffix, falling
// back to the first asset with the suffix
func SelectAsset(assets []Asset, abi, suffix string) (*Asset, bool) {
	if abi != "" {
		for i := range assets {
			if strings.Contains(assets[i].Name, abi) && strings.HasSuffix(assets[i].Name, suffix) {
				return &assets[i], true
			}
		}
	}
	for i := range assets {
		if strings.HasSuffix(assets[i].Name, suffix) {
			return &assets[i], true
		}
	}
	return nil, false
}
