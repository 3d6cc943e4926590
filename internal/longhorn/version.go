package longhorn

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	targetVersionPattern = regexp.MustCompile(`^v\d+\.\d+\.\d+$`)
	versionTokenPattern  = regexp.MustCompile(`v\d+\.\d+\.\d+`)
)

// ValidateVersion checks that v has the form vMAJOR.MINOR.PATCH.
func ValidateVersion(v string) error {
	if !targetVersionPattern.MatchString(v) {
		return fmt.Errorf("%w: %q", ErrInvalidVersionFormat, v)
	}
	return nil
}

// ExtractVersion returns the first vX.Y.Z token of an image reference or
// setting value, or Unknown.
func ExtractVersion(s string) string {
	if token := versionTokenPattern.FindString(s); token != "" {
		return token
	}
	return Unknown
}

// NormalizeVersion trims whitespace and adds a missing "v" prefix.
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == Unknown {
		return Unknown
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// MaxVersion returns the highest of the given versions by numeric semver
// ordering. Strings that do not parse are ignored. The second return value
// is false when nothing parsed.
func MaxVersion(versions []string) (string, bool) {
	var (
		best    *semver.Version
		bestRaw string
	)
	for _, raw := range versions {
		v, err := semver.NewVersion(strings.TrimPrefix(NormalizeVersion(raw), "v"))
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = NormalizeVersion(raw)
		}
	}
	return bestRaw, best != nil
}
