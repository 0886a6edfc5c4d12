package agent

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgefleet/rollout-agent/internal/metrics"
	"github.com/edgefleet/rollout-agent/internal/rollout/bootloader"
	"github.com/edgefleet/rollout-agent/internal/rollout/orchestrator"
	"github.com/edgefleet/rollout-agent/internal/statusserver"
	"github.com/edgefleet/rollout-agent/pkg/log"
)

// Agent runs the probe loop and, if enabled, the status server.
type Agent struct {
	orchestrator *orchestrator.Orchestrator
	bootloader   bootloader.Bootloader
	statusServer *statusserver.Server
}

// UpdateServer repoints the running agent at a new rollout server without
// restarting the probe loop; it takes effect on the next cycle.
func (a *Agent) UpdateServer(host string, port int) {
	a.orchestrator.UpdateServer(host, port)
}

// Run starts the ticker-driven probe loop and, if configured, the status
// server, and blocks until ctx is cancelled or either sub-task fails.
func (a *Agent) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.runLoop(ctx)
	})

	if a.statusServer != nil {
		g.Go(func() error {
			return a.statusServer.Start(ctx)
		})
	}

	return g.Wait()
}

// runLoop drives one Probe per tick, rescheduling the ticker at whatever
// PollInterval the last cycle reported. An UnconfirmedImage outcome
// reboots instead of scheduling another cycle, since there is nothing
// useful left for this boot to do.
func (a *Agent) runLoop(ctx context.Context) error {
	log.Info("starting rollout agent probe loop")

	a.runOnce(ctx)

	ticker := time.NewTicker(a.orchestrator.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if done := a.runOnce(ctx); done {
				return nil
			}
			ticker.Reset(a.orchestrator.PollInterval())
		case <-ctx.Done():
			log.Info("shutting down rollout agent probe loop")
			return nil
		}
	}
}

// runOnce runs one cycle and reports it to metrics, logs, and the status
// server. It returns true when the loop should stop scheduling further
// cycles (an unconfirmed image was rebooted away from).
func (a *Agent) runOnce(ctx context.Context) bool {
	report := a.orchestrator.Probe(ctx)

	log.Info("probe cycle finished",
		"outcome", report.Outcome.String(),
		"actionID", report.ActionID,
		"bytesWritten", report.BytesWritten,
		"duration", report.Duration,
		"nextPollInterval", report.PollInterval,
	)
	if report.Err != nil {
		log.Error(report.Err, "probe cycle reported an error", "outcome", report.Outcome.String())
	}

	metrics.CycleOutcomesTotal.WithLabelValues(report.Outcome.String()).Inc()
	metrics.CycleDurationSeconds.WithLabelValues(report.Outcome.String()).Observe(report.Duration.Seconds())
	metrics.PollIntervalSeconds.Set(report.PollInterval.Seconds())

	if a.statusServer != nil {
		a.statusServer.SetReport(report)
	}

	if report.Outcome == orchestrator.UnconfirmedImage {
		log.Warn("image unconfirmed, rebooting to roll back")
		if err := a.bootloader.Reboot(); err != nil {
			log.Error(err, "reboot request failed")
		}
		return true
	}

	return false
}
