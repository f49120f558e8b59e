package automation

import (
	"strconv"
	"strings"

	dErrors "pinksync/pkg/domain-errors"
)

// semver is a parsed release tag. Pre-release and build suffixes are ignored
// for governance purposes; only the numeric core matters.
type semver struct {
	Major int
	Minor int
	Patch int
}

// parseSemver accepts "1.2.3" and "v1.2.3" forms, with optional -pre/+build
// suffixes on the patch component.
func parseSemver(tag string) (semver, error) {
	s := strings.TrimPrefix(tag, "v")
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return semver{}, dErrors.Newf(dErrors.CodeInvalidInput, "release tag %q is not a semantic version", tag)
	}
	if i := strings.IndexAny(parts[2], "-+"); i >= 0 {
		parts[2] = parts[2][:i]
	}

	var v semver
	var err error
	if v.Major, err = strconv.Atoi(parts[0]); err != nil || v.Major < 0 {
		return semver{}, dErrors.Newf(dErrors.CodeInvalidInput, "release tag %q has an invalid major version", tag)
	}
	if v.Minor, err = strconv.Atoi(parts[1]); err != nil || v.Minor < 0 {
		return semver{}, dErrors.Newf(dErrors.CodeInvalidInput, "release tag %q has an invalid minor version", tag)
	}
	if v.Patch, err = strconv.Atoi(parts[2]); err != nil || v.Patch < 0 {
		return semver{}, dErrors.Newf(dErrors.CodeInvalidInput, "release tag %q has an invalid patch version", tag)
	}
	return v, nil
}
