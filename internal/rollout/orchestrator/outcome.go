// Package orchestrator implements the single-cycle rollout protocol state
// machine (the original firmware's "probe"): it drives the transport,
// assemblers, and descriptor parser through a fixed sequence of
// sub-requests and returns one terminal OutcomeCode per cycle.
package orchestrator

// OutcomeCode is the terminal result of one orchestrator cycle. Exactly
// one value is produced per call to Probe.
type OutcomeCode int

const (
	// Ok means a deployment was found but already matched the persisted
	// ActionId; an install-ack feedback was posted.
	Ok OutcomeCode = iota
	// NoUpdate means the server offered no deploymentBase link.
	NoUpdate
	// CancelUpdate means the server requested cancellation; it was acked.
	CancelUpdate
	// UpdateInstalled means a new artifact was staged and the bootloader
	// armed for a one-shot boot of the new image.
	UpdateInstalled
	// UnconfirmedImage means the running image was not confirmed at cycle
	// start; the cycle aborted without opening a session.
	UnconfirmedImage
	// DownloadError means the artifact was too large, a flash append
	// failed, or request_upgrade was rejected.
	DownloadError
	// NetworkingError means resolution, connection, or a request/response
	// failed at the transport layer.
	NetworkingError
	// MetadataError means the server sent a malformed or unexpected
	// document: missing markers, length mismatches, JSON decode failure,
	// an unknown chunk part, or a non-positive id.
	MetadataError
)

func (o OutcomeCode) String() string {
	switch o {
	case Ok:
		return "Ok"
	case NoUpdate:
		return "NoUpdate"
	case CancelUpdate:
		return "CancelUpdate"
	case UpdateInstalled:
		return "UpdateInstalled"
	case UnconfirmedImage:
		return "UnconfirmedImage"
	case DownloadError:
		return "DownloadError"
	case NetworkingError:
		return "NetworkingError"
	case MetadataError:
		return "MetadataError"
	default:
		return "Unknown"
	}
}
