// Package descriptor extracts the pieces of control/deployment documents
// the orchestrator needs to act on: the poll sleep interval, the
// cancelAction/deploymentBase link suffixes, and the validated deployment
// shape (one chunk, one artifact, within the alternate slot's capacity).
package descriptor

import (
	"fmt"
	"strconv"
	"time"
)

const sleepLength = len("HH:MM:SS")

// ErrMalformedSleep is returned (and should only be logged, never fatal)
// when the server's sleep string isn't exactly 8 characters or decodes to
// a non-positive duration.
var ErrMalformedSleep = fmt.Errorf("malformed poll sleep string")

// ParseSleep decodes a strict "HH:MM:SS" string into a duration. Per
// By convention any length other than 8 is rejected without inspecting
// the content, and a decoded value <= 0 is also rejected.
func ParseSleep(s string) (time.Duration, error) {
	if len(s) != sleepLength {
		return 0, ErrMalformedSleep
	}

	hh, err := strconv.Atoi(s[0:2])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedSleep, err)
	}
	if s[2] != ':' || s[5] != ':' {
		return 0, ErrMalformedSleep
	}
	mm, err := strconv.Atoi(s[3:5])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedSleep, err)
	}
	ss, err := strconv.Atoi(s[6:8])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedSleep, err)
	}

	seconds := hh*3600 + mm*60 + ss
	if seconds <= 0 {
		return 0, ErrMalformedSleep
	}

	return time.Duration(seconds) * time.Second, nil
}
