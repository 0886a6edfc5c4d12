package orchestrator

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/edgefleet/rollout-agent/pkg/log"
)

// States, in the order a probe cycle walks them.
const (
	stateInit                 = "init"
	stateCheckImageConfirmed  = "check_image_confirmed"
	stateFetchIdentity        = "fetch_identity"
	stateOpenSession          = "open_session"
	statePollBase             = "poll_base"
	stateCancelAck            = "cancel_ack"
	stateSendConfig           = "send_config"
	stateParseDeployLink      = "parse_deploy_link"
	statePollDeploy           = "poll_deploy"
	stateCheckActionID        = "check_action_id"
	stateAlreadyDone          = "already_done"
	stateDownload             = "download"
	stateArmBoot              = "arm_boot"
	statePersistActionID      = "persist_action_id"
	stateDone                 = "done"
)

// Events, one per edge of the state diagram. Using looplab/fsm to track
// the current state (rather than a bare switch) means an orchestrator bug
// that tries to fire an edge from the wrong state surfaces as an
// fsm.InvalidEventError instead of silently producing a wrong outcome.
const (
	evStart              = "start"
	evImageConfirmed     = "image_confirmed"
	evImageUnconfirmed   = "image_unconfirmed"
	evIdentityResolved   = "identity_resolved"
	evIdentityMissing    = "identity_missing"
	evSessionOpened      = "session_opened"
	evSessionFailed      = "session_failed"
	evBaseMetadataError  = "base_metadata_error"
	evBaseCancel         = "base_cancel"
	evBaseConfig         = "base_config"
	evBaseDeployLink     = "base_deploy_link"
	evConfigSent         = "config_sent"
	evConfigFailed       = "config_failed"
	evCancelAcked        = "cancel_acked"
	evDeployLinkEmpty    = "deploy_link_empty"
	evDeployLinkPresent  = "deploy_link_present"
	evDeployMetadataErr  = "deploy_metadata_error"
	evDeployParsed       = "deploy_parsed"
	evAlreadyInstalled   = "already_installed"
	evNewAction          = "new_action"
	evAlreadyAcked       = "already_acked"
	evDownloadError      = "download_error"
	evDownloadComplete   = "download_complete"
	evArmFailed          = "arm_failed"
	evArmed              = "armed"
	evInstalled          = "installed"
)

// cycleFSM wraps a looplab/fsm.FSM scoped to one probe cycle. The
// orchestrator's cycle state (context, outcome, identity, parsed
// documents) lives outside the FSM in cycleState; the FSM itself only
// enforces that edges fire from the state they're declared against and
// gives each state an enter_ hook for logging. It exists purely as a
// defensive check for transition legality, not for deciding which edge
// to take -- that branching lives in the orchestrator's run* methods.
type cycleFSM struct {
	*fsm.FSM
}

// fire transitions the FSM on event, logging (rather than panicking) if an
// orchestrator bug tries to fire an edge illegal from the current state --
// a cycle should still produce its computed OutcomeCode even if the
// bookkeeping FSM rejects the transition.
func (c *cycleFSM) fire(event string) {
	if err := c.Event(context.Background(), event); err != nil {
		log.Warn("orchestrator fsm rejected transition", "event", event, "state", c.Current(), "error", err)
	}
}

// newCycleFSM builds a fresh state machine for one probe cycle.
func newCycleFSM(logEnter func(state string)) *cycleFSM {
	events := fsm.Events{
		{Name: evStart, Src: []string{stateInit}, Dst: stateCheckImageConfirmed},
		{Name: evImageConfirmed, Src: []string{stateCheckImageConfirmed}, Dst: stateFetchIdentity},
		{Name: evImageUnconfirmed, Src: []string{stateCheckImageConfirmed}, Dst: stateDone},
		{Name: evIdentityResolved, Src: []string{stateFetchIdentity}, Dst: stateOpenSession},
		{Name: evIdentityMissing, Src: []string{stateFetchIdentity}, Dst: stateDone},
		{Name: evSessionOpened, Src: []string{stateOpenSession}, Dst: statePollBase},
		{Name: evSessionFailed, Src: []string{stateOpenSession}, Dst: stateDone},
		{Name: evBaseMetadataError, Src: []string{statePollBase}, Dst: stateDone},
		{Name: evBaseCancel, Src: []string{statePollBase}, Dst: stateCancelAck},
		{Name: evBaseConfig, Src: []string{statePollBase}, Dst: stateSendConfig},
		{Name: evBaseDeployLink, Src: []string{statePollBase, stateSendConfig}, Dst: stateParseDeployLink},
		{Name: evConfigFailed, Src: []string{stateSendConfig}, Dst: stateDone},
		{Name: evCancelAcked, Src: []string{stateCancelAck}, Dst: stateDone},
		{Name: evDeployLinkEmpty, Src: []string{stateParseDeployLink}, Dst: stateDone},
		{Name: evDeployLinkPresent, Src: []string{stateParseDeployLink}, Dst: statePollDeploy},
		{Name: evDeployMetadataErr, Src: []string{statePollDeploy}, Dst: stateDone},
		{Name: evDeployParsed, Src: []string{statePollDeploy}, Dst: stateCheckActionID},
		{Name: evAlreadyInstalled, Src: []string{stateCheckActionID}, Dst: stateAlreadyDone},
		{Name: evNewAction, Src: []string{stateCheckActionID}, Dst: stateDownload},
		{Name: evAlreadyAcked, Src: []string{stateAlreadyDone}, Dst: stateDone},
		{Name: evDownloadError, Src: []string{stateDownload}, Dst: stateDone},
		{Name: evDownloadComplete, Src: []string{stateDownload}, Dst: stateArmBoot},
		{Name: evArmFailed, Src: []string{stateArmBoot}, Dst: stateDone},
		{Name: evArmed, Src: []string{stateArmBoot}, Dst: statePersistActionID},
		{Name: evInstalled, Src: []string{statePersistActionID}, Dst: stateDone},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			if logEnter != nil {
				logEnter(e.Dst)
			}
		},
	}

	return &cycleFSM{FSM: fsm.NewFSM(stateInit, events, callbacks)}
}
