package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/edgefleet/rollout-agent/internal/metrics"
	"github.com/edgefleet/rollout-agent/internal/rollout/assemble"
	"github.com/edgefleet/rollout-agent/internal/rollout/bootloader"
	"github.com/edgefleet/rollout-agent/internal/rollout/descriptor"
	"github.com/edgefleet/rollout-agent/internal/rollout/flashio"
	"github.com/edgefleet/rollout-agent/internal/rollout/identity"
	"github.com/edgefleet/rollout-agent/internal/rollout/protocol"
	"github.com/edgefleet/rollout-agent/internal/rollout/store"
	"github.com/edgefleet/rollout-agent/internal/rollout/transport"
	"github.com/edgefleet/rollout-agent/pkg/log"
)

const (
	defaultPollInterval = 5 * time.Minute
	minPollInterval     = 2 * time.Minute
	maxPollInterval     = 720 * time.Minute

	contentTypeJSON = "application/json;charset=UTF-8"
)

// Config holds the per-device settings a cycle needs: the server
// endpoint, TLS pinning, and the board identifier interpolated into
// URLs.
type Config struct {
	ServerHost string
	ServerPort int
	TLS        transport.TLSConfig
	Board      string

	Bootloader Bootloader
	Identity   identity.Source
	Store      store.Store
	FlashSlot  string // path the flashio.FileWriter streams the artifact into
}

// Bootloader is the subset of bootloader.Bootloader the orchestrator
// drives directly; declared locally so tests can supply a narrower fake.
type Bootloader interface {
	IsImageConfirmed() (bool, error)
	RequestUpgrade() error
	AltSlotSize() int64
}

var _ Bootloader = bootloader.Bootloader(nil)

// CycleReport summarizes one Probe call for logging, metrics, and the
// status server.
type CycleReport struct {
	Outcome      OutcomeCode
	ActionID     int32
	BytesWritten int64
	Duration     time.Duration
	PollInterval time.Duration
	Err          error
}

// Orchestrator runs one probe cycle at a time. It holds no state across
// cycles except the current PollInterval, since each cycle runs to
// completion before the next one starts.
type Orchestrator struct {
	cfgMu        sync.RWMutex
	cfg          Config
	pollInterval time.Duration
}

// New creates an Orchestrator with the default PollInterval.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg, pollInterval: defaultPollInterval}
}

// PollInterval returns the interval the next cycle should be scheduled
// after, as last updated by a successful POLL_BASE response.
func (o *Orchestrator) PollInterval() time.Duration {
	return o.pollInterval
}

// UpdateServer repoints the orchestrator at a different rollout server
// host/port, effective from the next cycle onward. It exists so a
// watched configuration file can redirect the agent without restarting
// the process.
func (o *Orchestrator) UpdateServer(host string, port int) {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()
	o.cfg.ServerHost = host
	o.cfg.ServerPort = port
}

func (o *Orchestrator) serverAddr() (string, int) {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg.ServerHost, o.cfg.ServerPort
}

// cycleState carries one Probe call's working data: the FSM instance, the
// transport session (opened lazily), and everything read from server
// responses along the way.
type cycleState struct {
	fsm     *cycleFSM
	session *transport.Session

	deviceID string
	basePath string

	cancelActionID int32
	hasCancel      bool
	hasConfig      bool
	deployHref     string

	deployment descriptor.Deployment

	report CycleReport
}

// Probe runs exactly one cycle of the update state machine and returns its
// outcome. ctx bounds the whole cycle, including all network I/O.
func (o *Orchestrator) Probe(ctx context.Context) CycleReport {
	start := time.Now()
	cs := &cycleState{report: CycleReport{PollInterval: o.pollInterval}}
	cs.fsm = newCycleFSM(func(state string) {
		log.Debug("orchestrator state", "state", state)
	})

	cs.fsm.fire(evStart)
	outcome := o.runCheckImageConfirmed(ctx, cs)

	cs.report.Outcome = outcome
	cs.report.Duration = time.Since(start)
	cs.report.PollInterval = o.pollInterval
	if cs.session != nil {
		cs.session.Close()
	}
	return cs.report
}

func (o *Orchestrator) runCheckImageConfirmed(ctx context.Context, cs *cycleState) OutcomeCode {
	confirmed, err := o.cfg.Bootloader.IsImageConfirmed()
	if err != nil {
		log.Error(err, "failed to query bootloader confirmation state")
		cs.fsm.fire(evImageUnconfirmed)
		cs.report.Err = err
		return UnconfirmedImage
	}
	if !confirmed {
		cs.fsm.fire(evImageUnconfirmed)
		return UnconfirmedImage
	}
	cs.fsm.fire(evImageConfirmed)
	return o.runFetchIdentity(ctx, cs)
}

func (o *Orchestrator) runFetchIdentity(ctx context.Context, cs *cycleState) OutcomeCode {
	deviceID, err := o.cfg.Identity.DeviceID()
	if err != nil {
		cs.fsm.fire(evIdentityMissing)
		cs.report.Err = fmt.Errorf("fetch identity: %w", err)
		return MetadataError
	}
	if _, err := o.cfg.Identity.FirmwareVersion(); err != nil {
		cs.fsm.fire(evIdentityMissing)
		cs.report.Err = fmt.Errorf("fetch identity: %w", err)
		return MetadataError
	}
	cs.deviceID = deviceID
	cs.basePath = fmt.Sprintf("/DEFAULT/controller/v1/%s-%s", o.cfg.Board, deviceID)

	cs.fsm.fire(evIdentityResolved)
	return o.runOpenSession(ctx, cs)
}

func (o *Orchestrator) runOpenSession(ctx context.Context, cs *cycleState) OutcomeCode {
	host, port := o.serverAddr()
	session, err := transport.Open(ctx, host, port, o.cfg.TLS)
	if err != nil {
		cs.fsm.fire(evSessionFailed)
		cs.report.Err = fmt.Errorf("open session: %w", err)
		return NetworkingError
	}
	cs.session = session

	cs.fsm.fire(evSessionOpened)
	return o.runPollBase(ctx, cs)
}

func (o *Orchestrator) runPollBase(ctx context.Context, cs *cycleState) OutcomeCode {
	acc := assemble.NewJSONAccumulator()
	err := cs.session.Request(ctx, http.MethodGet, cs.basePath, nil, nil, transport.KindControl, acc.Handle)
	if err != nil {
		cs.fsm.fire(evBaseMetadataError)
		cs.report.Err = fmt.Errorf("poll base: %w", err)
		if errors.Is(err, assemble.ErrContentLengthMismatch) {
			return MetadataError
		}
		return NetworkingError
	}

	var res protocol.ControlResponse
	if err := acc.Decode(&res); err != nil {
		cs.fsm.fire(evBaseMetadataError)
		cs.report.Err = err
		return MetadataError
	}

	if res.Config.Polling.Sleep != "" {
		if d, err := descriptor.ParseSleep(res.Config.Polling.Sleep); err != nil {
			log.Warn("ignoring malformed poll sleep", "sleep", res.Config.Polling.Sleep, "error", err)
		} else {
			o.pollInterval = clampPollInterval(d)
		}
	}

	actionID, hasCancel, err := descriptor.CancelAction(res.Links.CancelAction.HREF)
	if err != nil {
		cs.fsm.fire(evBaseMetadataError)
		cs.report.Err = err
		return MetadataError
	}

	if hasCancel {
		cs.cancelActionID = actionID
		cs.fsm.fire(evBaseCancel)
		return o.runCancelAck(ctx, cs)
	}

	deployHref, err := descriptor.DeploymentBase(res.Links.DeploymentBase.HREF)
	if err != nil {
		cs.fsm.fire(evBaseMetadataError)
		cs.report.Err = err
		return MetadataError
	}
	cs.deployHref = deployHref

	if res.Links.ConfigData.HREF != "" {
		cs.hasConfig = true
		cs.fsm.fire(evBaseConfig)
		if outcome, ok := o.runSendConfig(ctx, cs); ok {
			return outcome
		}
	} else {
		cs.fsm.fire(evBaseDeployLink)
	}

	return o.runParseDeployLink(ctx, cs)
}

// runSendConfig returns (outcome, true) only when it terminates the cycle
// (a transport failure); otherwise the caller proceeds to
// runParseDeployLink per the "always" edge out of SEND_CONFIG.
func (o *Orchestrator) runSendConfig(ctx context.Context, cs *cycleState) (OutcomeCode, bool) {
	msg := protocol.NewConfigMessage(cs.deviceID)
	body, err := json.Marshal(msg)
	if err != nil {
		cs.fsm.fire(evConfigFailed)
		cs.report.Err = err
		return MetadataError, true
	}

	headers := map[string]string{"Content-Type": contentTypeJSON}
	err = cs.session.Request(ctx, http.MethodPut, cs.basePath+"/configData", headers, body, transport.KindControl, func([]byte, bool, int64) error { return nil })
	if err != nil {
		cs.fsm.fire(evConfigFailed)
		cs.report.Err = fmt.Errorf("send config: %w", err)
		return NetworkingError, true
	}

	cs.fsm.fire(evBaseDeployLink)
	return 0, false
}

func (o *Orchestrator) runCancelAck(ctx context.Context, cs *cycleState) OutcomeCode {
	body, _ := json.Marshal(protocol.FeedbackMessage{Status: protocol.ClosedSuccess()})
	path := fmt.Sprintf("%s/cancelAction/%d/feedback", cs.basePath, cs.cancelActionID)
	headers := map[string]string{"Content-Type": contentTypeJSON}

	err := cs.session.Request(ctx, http.MethodPost, path, headers, body, transport.KindFeedback, func([]byte, bool, int64) error { return nil })
	if err != nil {
		log.Warn("cancel ack failed to send", "actionID", cs.cancelActionID, "error", err)
	}

	cs.fsm.fire(evCancelAcked)
	return CancelUpdate
}

func (o *Orchestrator) runParseDeployLink(ctx context.Context, cs *cycleState) OutcomeCode {
	if cs.deployHref == "" {
		cs.fsm.fire(evDeployLinkEmpty)
		return NoUpdate
	}
	cs.fsm.fire(evDeployLinkPresent)
	return o.runPollDeploy(ctx, cs)
}

func (o *Orchestrator) runPollDeploy(ctx context.Context, cs *cycleState) OutcomeCode {
	acc := assemble.NewJSONAccumulator()
	path := cs.basePath + "/" + cs.deployHref
	err := cs.session.Request(ctx, http.MethodGet, path, nil, nil, transport.KindDeployment, acc.Handle)
	if err != nil {
		cs.fsm.fire(evDeployMetadataErr)
		cs.report.Err = fmt.Errorf("poll deploy: %w", err)
		if errors.Is(err, assemble.ErrContentLengthMismatch) {
			return MetadataError
		}
		return NetworkingError
	}

	var res protocol.DeploymentResponse
	if err := acc.Decode(&res); err != nil {
		cs.fsm.fire(evDeployMetadataErr)
		cs.report.Err = err
		return MetadataError
	}

	deployment, err := descriptor.ParseDeployment(res, o.cfg.Bootloader.AltSlotSize())
	if err != nil {
		cs.fsm.fire(evDeployMetadataErr)
		cs.report.Err = err
		if errors.Is(err, descriptor.ErrArtifactTooLarge) {
			return DownloadError
		}
		return MetadataError
	}
	cs.deployment = deployment
	cs.report.ActionID = deployment.ActionID

	cs.fsm.fire(evDeployParsed)
	return o.runCheckActionID(ctx, cs)
}

func (o *Orchestrator) runCheckActionID(ctx context.Context, cs *cycleState) OutcomeCode {
	persisted, err := o.cfg.Store.Read()
	if err != nil {
		log.Warn("failed to read persisted action id, treating as none", "error", err)
		persisted = store.NoActionID
	}

	if cs.deployment.ActionID == persisted {
		cs.fsm.fire(evAlreadyInstalled)
		return o.runAlreadyDone(ctx, cs)
	}

	cs.fsm.fire(evNewAction)
	return o.runDownload(ctx, cs)
}

func (o *Orchestrator) runAlreadyDone(ctx context.Context, cs *cycleState) OutcomeCode {
	body, _ := json.Marshal(protocol.FeedbackMessage{Status: protocol.ClosedSuccess()})
	path := fmt.Sprintf("%s/%s/feedback", cs.basePath, cs.deployHref)
	headers := map[string]string{"Content-Type": contentTypeJSON}

	err := cs.session.Request(ctx, http.MethodPost, path, headers, body, transport.KindFeedback, func([]byte, bool, int64) error { return nil })
	if err != nil {
		log.Warn("already-installed ack failed to send", "actionID", cs.deployment.ActionID, "error", err)
	}

	cs.fsm.fire(evAlreadyAcked)
	return Ok
}

func (o *Orchestrator) runDownload(ctx context.Context, cs *cycleState) OutcomeCode {
	writer, err := flashio.NewFileWriter(o.cfg.FlashSlot)
	if err != nil {
		cs.fsm.fire(evDownloadError)
		cs.report.Err = err
		return DownloadError
	}
	defer writer.Close()

	metrics.DownloadProgressPercent.Set(0)
	fa := assemble.NewFlashAssembler(writer, cs.deployment.Size, func(percent int) {
		log.Debug("download progress", "percent", percent)
		metrics.DownloadProgressPercent.Set(float64(percent))
	})

	err = cs.session.Request(ctx, http.MethodGet, cs.deployment.DownloadPath, nil, nil, transport.KindArtifact, fa.Handle)
	if err != nil {
		cs.fsm.fire(evDownloadError)
		cs.report.Err = fmt.Errorf("download artifact: %w", err)
		return DownloadError
	}

	cs.report.BytesWritten = fa.BytesWritten()
	if fa.BytesWritten() != cs.deployment.Size {
		cs.fsm.fire(evDownloadError)
		cs.report.Err = fmt.Errorf("download artifact: got %d bytes, want %d", fa.BytesWritten(), cs.deployment.Size)
		return MetadataError
	}

	cs.fsm.fire(evDownloadComplete)
	return o.runArmBoot(ctx, cs)
}

func (o *Orchestrator) runArmBoot(ctx context.Context, cs *cycleState) OutcomeCode {
	if err := o.cfg.Bootloader.RequestUpgrade(); err != nil {
		cs.fsm.fire(evArmFailed)
		cs.report.Err = fmt.Errorf("request upgrade: %w", err)
		return DownloadError
	}

	cs.fsm.fire(evArmed)
	return o.runPersistActionID(ctx, cs)
}

func (o *Orchestrator) runPersistActionID(ctx context.Context, cs *cycleState) OutcomeCode {
	if err := o.cfg.Store.Write(cs.deployment.ActionID); err != nil {
		// A write failure here is surfaced but not fatal: the install is
		// already armed and will retry on the next cycle if needed.
		log.Error(err, "failed to persist installed action id", "actionID", cs.deployment.ActionID)
		cs.report.Err = err
	}

	cs.fsm.fire(evInstalled)
	return UpdateInstalled
}

func clampPollInterval(d time.Duration) time.Duration {
	if d < minPollInterval {
		return minPollInterval
	}
	if d > maxPollInterval {
		return maxPollInterval
	}
	return d
}
