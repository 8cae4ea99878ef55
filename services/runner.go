package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/awerar/allysync/crypto"
	"github.com/awerar/allysync/metrics"
	"github.com/awerar/allysync/protocol"
)

// TickSource reports the current world tick, refreshing it from the host
// if necessary.
type TickSource interface {
	RefreshTick() (uint64, error)
}

// AgentRunner drives an agent's per-tick state machines against a host:
// it polls the tick source and runs exactly one step per observed tick.
// An agent can be a leader, a member, or both (a leader that also syncs
// peer data).
type AgentRunner struct {
	log   *slog.Logger
	name  string
	ticks TickSource

	leader *protocol.LeaderService
	syncer *protocol.Syncer

	// PollInterval is how often the tick source is checked. Defaults to
	// 250ms.
	PollInterval time.Duration

	lastTick uint64
	seenTick bool
}

// NewAgentRunner creates a runner. Either service may be nil; key
// rotations on the syncer are counted through the metrics hook.
func NewAgentRunner(log *slog.Logger, name string, ticks TickSource, leader *protocol.LeaderService, syncer *protocol.Syncer) *AgentRunner {
	r := &AgentRunner{
		log:    log,
		name:   name,
		ticks:  ticks,
		leader: leader,
		syncer: syncer,
	}
	if syncer != nil {
		syncer.KeyManager().OnKeyChanged(func(*crypto.SharedKey) {
			metrics.IncKeyRotation()
		})
	}
	return r
}

// Run polls for new ticks until the context is canceled.
func (r *AgentRunner) Run(ctx context.Context) error {
	interval := r.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("agent runner started", "agent", r.name)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("agent runner stopped", "agent", r.name)
			return nil
		case <-ticker.C:
		}
		if err := r.RunOnce(); err != nil {
			r.log.Warn("tick poll failed", "agent", r.name, "err", err)
		}
	}
}

// RunOnce checks the tick source and steps the state machines if the tick
// advanced since the last step.
func (r *AgentRunner) RunOnce() error {
	tick, err := r.ticks.RefreshTick()
	if err != nil {
		return err
	}
	if r.seenTick && tick == r.lastTick {
		return nil
	}
	r.lastTick = tick
	r.seenTick = true
	r.Step(tick)
	return nil
}

// Step runs one tick's worth of work unconditionally.
func (r *AgentRunner) Step(tick uint64) {
	if r.leader != nil {
		result := r.leader.Step()
		metrics.IncStepResult("leader", result.String())
		r.log.Debug("leader step", "agent", r.name, "tick", tick, "result", result.String())
	}
	if r.syncer != nil {
		result := r.syncer.Step()
		metrics.IncStepResult("member", result.String())
		r.log.Debug("sync step", "agent", r.name, "tick", tick, "result", result.String())
		if result == protocol.StepSynced {
			r.syncer.Publish()
		}
	}
}
