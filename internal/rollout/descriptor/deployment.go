package descriptor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/edgefleet/rollout-agent/internal/rollout/protocol"
)

const (
	// downloadHTTPMarker is the tenant/API path every supported
	// download-http href must contain; the suffix from this point on is
	// what gets requested, against the same host the descriptor itself
	// came from.
	downloadHTTPMarker = "/DEFAULT/controller/v1"
	maxDownloadPathLen = 199

	expectedPart = "bApp"
)

var (
	// ErrUnexpectedChunkCount is returned when the deployment doesn't
	// carry exactly one chunk; multi-chunk deployments are out of scope.
	ErrUnexpectedChunkCount = errors.New("expected exactly one chunk")
	// ErrUnsupportedPart is returned for any chunk part other than "bApp".
	ErrUnsupportedPart = errors.New("unsupported chunk part")
	// ErrUnexpectedArtifactCount is returned when a chunk doesn't carry
	// exactly one artifact; multi-artifact deployments are out of scope.
	ErrUnexpectedArtifactCount = errors.New("expected exactly one artifact")
	// ErrArtifactTooLarge is returned when the artifact doesn't fit the
	// alternate flash slot; this maps to DownloadError, not MetadataError.
	ErrArtifactTooLarge = errors.New("artifact exceeds alternate slot capacity")
	// ErrMissingDownloadLink is returned when the artifact has no
	// download-http href at all.
	ErrMissingDownloadLink = errors.New("missing download-http link")
	// ErrNegativeActionID is returned when the deployment id parses to a
	// negative integer.
	ErrNegativeActionID = errors.New("negative action id")
)

// Deployment is the validated, orchestrator-ready view of a
// protocol.DeploymentResponse: the parsed action id and the download
// path/size of its single artifact.
type Deployment struct {
	ActionID     int32
	DownloadPath string
	Size         int64
}

// ParseDeployment validates a deployment descriptor and extracts the
// fields a download needs. altSlotSize is the alternate flash slot's
// capacity in bytes.
func ParseDeployment(res protocol.DeploymentResponse, altSlotSize int64) (Deployment, error) {
	id, err := strconv.ParseInt(res.ID, 10, 32)
	if err != nil {
		return Deployment{}, fmt.Errorf("invalid action id %q: %w", res.ID, err)
	}
	if id < 0 {
		return Deployment{}, fmt.Errorf("%w: %d", ErrNegativeActionID, id)
	}

	chunks := res.Deployment.Chunks
	if len(chunks) != 1 {
		return Deployment{}, fmt.Errorf("%w: got %d", ErrUnexpectedChunkCount, len(chunks))
	}

	chunk := chunks[0]
	if chunk.Part != expectedPart {
		return Deployment{}, fmt.Errorf("%w: got %q", ErrUnsupportedPart, chunk.Part)
	}

	if len(chunk.Artifacts) != 1 {
		return Deployment{}, fmt.Errorf("%w: got %d", ErrUnexpectedArtifactCount, len(chunk.Artifacts))
	}

	artifact := chunk.Artifacts[0]
	if artifact.Size > altSlotSize {
		return Deployment{}, fmt.Errorf("%w: size %d, capacity %d", ErrArtifactTooLarge, artifact.Size, altSlotSize)
	}

	href := artifact.Links.DownloadHTTP.HREF
	if href == "" {
		return Deployment{}, ErrMissingDownloadLink
	}

	idx := strings.Index(href, downloadHTTPMarker)
	if idx < 0 {
		return Deployment{}, fmt.Errorf("%w: unexpected download-http format %q", ErrMissingMarker, href)
	}

	path := href[idx:]
	if len(path) > maxDownloadPathLen {
		return Deployment{}, fmt.Errorf("%w: download-http path len %d exceeds %d", ErrLinkTooLarge, len(path), maxDownloadPathLen)
	}

	return Deployment{
		ActionID:     int32(id),
		DownloadPath: path,
		Size:         artifact.Size,
	}, nil
}
