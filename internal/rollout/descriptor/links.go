package descriptor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Length bounds mirror the fixed buffers a constrained device would use
// (CANCEL_BASE_SIZE, DEPLOYMENT_BASE_SIZE): a suffix longer than this is
// treated as an application-level resource error, not merely malformed.
const (
	maxCancelBaseLen     = 49
	maxDeploymentBaseLen = 49
)

var (
	// ErrMissingMarker is returned when a non-empty href doesn't contain
	// the expected path marker at all -- a server-side formatting error.
	ErrMissingMarker = errors.New("missing expected marker in href")
	// ErrLinkTooLarge is returned when the suffix from the marker onward
	// would not fit a fixed-size on-device buffer.
	ErrLinkTooLarge = errors.New("link suffix exceeds buffer bound")
	// ErrInvalidActionID is returned when the id token after the marker
	// doesn't parse to a positive ActionId.
	ErrInvalidActionID = errors.New("invalid action id in link")
)

// CancelAction extracts the ActionId from a cancelAction href shaped like
// ".../cancelAction/<id>". present is false when href is empty (no
// cancellation offered); err is non-nil only when href is non-empty but
// malformed.
func CancelAction(href string) (actionID int32, present bool, err error) {
	if href == "" {
		return 0, false, nil
	}

	idx := strings.Index(href, "cancelAction/")
	if idx < 0 {
		return 0, true, fmt.Errorf("%w: cancelAction/ not found in %q", ErrMissingMarker, href)
	}

	suffix := href[idx:]
	if len(suffix) > maxCancelBaseLen {
		return 0, true, fmt.Errorf("%w: cancelAction suffix len %d exceeds %d", ErrLinkTooLarge, len(suffix), maxCancelBaseLen)
	}

	parts := strings.Split(suffix, "/")
	if len(parts) < 2 {
		return 0, true, fmt.Errorf("%w: no id token after cancelAction/", ErrInvalidActionID)
	}

	id, convErr := strconv.ParseInt(parts[1], 10, 32)
	if convErr != nil || id <= 0 {
		return 0, true, fmt.Errorf("%w: %q", ErrInvalidActionID, parts[1])
	}

	return int32(id), true, nil
}

// DeploymentBase extracts the "deploymentBase/..." suffix from the
// deploymentBase href. An empty href yields an empty suffix and a nil
// error -- the caller interprets that as NoUpdate, not a malformed link.
func DeploymentBase(href string) (suffix string, err error) {
	if href == "" {
		return "", nil
	}

	idx := strings.Index(href, "deploymentBase/")
	if idx < 0 {
		return "", fmt.Errorf("%w: deploymentBase/ not found in %q", ErrMissingMarker, href)
	}

	suffix = href[idx:]
	if len(suffix) > maxDeploymentBaseLen {
		return "", fmt.Errorf("%w: deploymentBase suffix len %d exceeds %d", ErrLinkTooLarge, len(suffix), maxDeploymentBaseLen)
	}

	return suffix, nil
}
