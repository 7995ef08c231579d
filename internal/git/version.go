package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	slerrors "stageline.dev/stageline/internal/errors"
)

// MinVersion is the oldest git that supports merge-tree --write-tree with --merge-base
var MinVersion = Version{Major: 2, Minor: 40}

// Version is a git release number
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v is o or newer
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor > o.Minor
	}
	return v.Patch >= o.Patch
}

// ParseVersion reads the output of `git version`, e.g. "git version 2.43.0" or
// "git version 2.39.3 (Apple Git-146)"
func ParseVersion(out string) (Version, error) {
	fields := strings.Fields(out)
	if len(fields) < 3 || fields[0] != "git" || fields[1] != "version" {
		return Version{}, fmt.Errorf("unrecognized git version %q", out)
	}

	parts := strings.SplitN(fields[2], ".", 4)
	if len(parts) < 2 {
		return Version{}, fmt.Errorf("unrecognized git version %q", out)
	}
	var nums [3]int
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			if i < 2 {
				return Version{}, fmt.Errorf("unrecognized git version %q", out)
			}
			break
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// CheckVersion fails with PreconditionFailed when the installed git is older than MinVersion
func CheckVersion(ctx context.Context, runner *CommandRunner) error {
	out, err := runner.Run(ctx, "version")
	if err != nil {
		return fmt.Errorf("failed to run git: %w", err)
	}
	v, err := ParseVersion(out)
	if err != nil {
		return slerrors.Wrap(slerrors.KindPreconditionFailed, "git version", err, "cannot read git version")
	}
	if !v.AtLeast(MinVersion) {
		return slerrors.New(slerrors.KindPreconditionFailed, "git version",
			"git %s is too old, stageline needs %d.%d or newer", v, MinVersion.Major, MinVersion.Minor)
	}
	return nil
}
