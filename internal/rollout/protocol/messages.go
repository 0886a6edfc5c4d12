// Package protocol contains the typed JSON documents exchanged with the
// rollout server: the control/poll response, the deployment descriptor,
// and the feedback/config messages the device posts back.
package protocol

// Execution is the device-reported execution state of a feedback message.
type Execution string

const (
	ExecutionClosed     Execution = "closed"
	ExecutionProceeding Execution = "proceeding"
	ExecutionCanceled   Execution = "canceled"
	ExecutionScheduled  Execution = "scheduled"
	ExecutionRejected   Execution = "rejected"
	ExecutionResumed    Execution = "resumed"
	ExecutionNone       Execution = "none"
)

// Finished is the device-reported result of a feedback message.
type Finished string

const (
	FinishedSuccess Finished = "success"
	FinishedFailure Finished = "failure"
	FinishedNone    Finished = "none"
)

// StatusResult carries the terminal result of an execution.
type StatusResult struct {
	Finished Finished `json:"finished"`
}

// Status is embedded in every feedback-shaped document the device posts.
type Status struct {
	Execution Execution    `json:"execution"`
	Result    StatusResult `json:"result"`
}

// ClosedSuccess is the status reported for an uneventful ack: cancellation,
// config push, or "already installed" confirmation.
func ClosedSuccess() Status {
	return Status{Execution: ExecutionClosed, Result: StatusResult{Finished: FinishedSuccess}}
}

// Href is the smallest building block of the server's link documents.
type Href struct {
	HREF string `json:"href"`
}

// ControlResponseLinks lists the sub-resources the base poll response may
// advertise. Any of them may be the zero value, meaning "not offered".
type ControlResponseLinks struct {
	DeploymentBase Href `json:"deploymentBase"`
	CancelAction   Href `json:"cancelAction"`
	ConfigData     Href `json:"configData"`
}

// ControlResponsePolling carries the server's requested poll cadence.
type ControlResponsePolling struct {
	Sleep string `json:"sleep"`
}

// ControlResponseConfig wraps ControlResponsePolling the way the server
// nests it.
type ControlResponseConfig struct {
	Polling ControlResponsePolling `json:"polling"`
}

// ControlResponse is the top-level document returned from a base poll.
type ControlResponse struct {
	Config ControlResponseConfig `json:"config"`
	Links  ControlResponseLinks  `json:"_links"`
}

// Hashes are the artifact checksums the server advertises; none are
// verified beyond what the bootloader itself performs.
type Hashes struct {
	SHA1   string `json:"sha1"`
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// ArtifactLinks holds the download href(s) for one artifact.
type ArtifactLinks struct {
	DownloadHTTP Href `json:"download-http"`
	MD5SumHTTP   Href `json:"md5sum-http"`
}

// Artifact describes one downloadable file within a chunk.
type Artifact struct {
	Filename string        `json:"filename"`
	Hashes   Hashes        `json:"hashes"`
	Size     int64         `json:"size"`
	Links    ArtifactLinks `json:"_links"`
}

// Chunk groups artifacts under a deployment "part" (only "bApp" is
// supported, see descriptor.ParseDeployment).
type Chunk struct {
	Part      string     `json:"part"`
	Version   string     `json:"version"`
	Name      string     `json:"name"`
	Artifacts []Artifact `json:"artifacts"`
}

// Deployment is the nested body of a DeploymentResponse.
type Deployment struct {
	Download string  `json:"download"`
	Update   string  `json:"update"`
	Chunks   []Chunk `json:"chunks"`
}

// DeploymentResponse is the document returned when following a
// deploymentBase link.
type DeploymentResponse struct {
	ID         string     `json:"id"`
	Deployment Deployment `json:"deployment"`
}

// FeedbackMessage is posted to close out a cancellation or deployment
// interaction.
type FeedbackMessage struct {
	ID     string `json:"id"`
	Time   string `json:"time"`
	Status Status `json:"status"`
}

// ConfigData is the device-reported identity pushed to configData.
type ConfigData struct {
	VIN        string `json:"VIN"`
	HWRevision string `json:"hwRevision"`
}

// ConfigMessage is the body sent to the configData endpoint.
type ConfigMessage struct {
	Mode   string     `json:"mode"`
	Data   ConfigData `json:"data"`
	ID     string     `json:"id"`
	Time   string     `json:"time"`
	Status Status     `json:"status"`
}

// NewConfigMessage builds the merge-mode config push body the control server
// describes for SEND_CONFIG.
func NewConfigMessage(vin string) ConfigMessage {
	return ConfigMessage{
		Mode: "merge",
		Data: ConfigData{
			VIN:        vin,
			HWRevision: "3",
		},
		Status: ClosedSuccess(),
	}
}
