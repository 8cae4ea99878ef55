package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/awerar/allysync/protocol"
	"github.com/awerar/allysync/services"
)

// OrchestratorConfig contains deployment configuration.
type OrchestratorConfig struct {
	NumMembers int

	TickInterval      time.Duration
	ReportInterval    time.Duration
	KeyLifetime       uint64
	RotationLookahead uint64
}

// Orchestrator runs a complete alliance in one process: a substrate with
// its ticker, the leader, and a set of member agents that publish fake
// intelligence at each other.
type Orchestrator struct {
	config *OrchestratorConfig
	log    *slog.Logger

	substrate *services.Substrate
	leader    *services.AgentRunner
	leaderSvc *protocol.LeaderService
	members   []*demoMember

	ctx    context.Context
	cancel context.CancelFunc
	done   sync.WaitGroup
}

type demoMember struct {
	name   string
	runner *services.AgentRunner
	syncer *protocol.Syncer
}

// NewOrchestrator creates a deployment orchestrator.
func NewOrchestrator(log *slog.Logger, config *OrchestratorConfig) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		config: config,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (o *Orchestrator) syncConfig(self string) *protocol.SyncConfig {
	cfg := &protocol.SyncConfig{
		Self:              self,
		LeaderName:        "Leader",
		LeaderRoom:        "W0N0",
		KeyLifetime:       o.config.KeyLifetime,
		RotationLookahead: o.config.RotationLookahead,

		// Demo-scale intervals so something happens every few ticks.
		LeaderSyncInterval: 10,
		PeerSyncInterval:   2,
	}
	cfg.Normalize()
	return cfg
}

// Deploy builds the world and starts the tick loop.
func (o *Orchestrator) Deploy() error {
	substrate, err := services.NewSubstrate(o.log, services.NewInMemoryStore())
	if err != nil {
		return fmt.Errorf("create substrate: %w", err)
	}
	o.substrate = substrate

	leaderHost, err := services.NewLocalHost(o.log, substrate, "Leader", "W0N0")
	if err != nil {
		return fmt.Errorf("deploy leader: %w", err)
	}
	o.leaderSvc = protocol.NewLeaderService(o.syncConfig("Leader"), o.log, leaderHost, leaderHost, leaderHost)
	o.leader = services.NewAgentRunner(o.log, "Leader", leaderHost, o.leaderSvc, nil)

	roster := protocol.Roster{}
	addresses := map[string]string{}
	for i := 0; i < o.config.NumMembers; i++ {
		name := fmt.Sprintf("member-%d", i)
		address := fmt.Sprintf("W%dN%d", i+1, i+1)
		rank := protocol.RankMember
		if i == 0 {
			rank = protocol.RankCouncil
		}
		roster[name] = rank
		addresses[name] = address

		host, err := services.NewLocalHost(o.log, substrate, name, address)
		if err != nil {
			return fmt.Errorf("deploy %s: %w", name, err)
		}
		syncer := protocol.NewSyncer(o.syncConfig(name), o.log, host, host, host, host)
		o.members = append(o.members, &demoMember{
			name:   name,
			runner: services.NewAgentRunner(o.log, name, host, nil, syncer),
			syncer: syncer,
		})
	}
	o.leaderSvc.SetMembers(roster, addresses)

	o.done.Add(1)
	go o.run()

	o.log.Info("deployment complete", "members", o.config.NumMembers, "tickInterval", o.config.TickInterval)
	return nil
}

// run is the single driver goroutine: it owns the tick and steps every
// agent in order, so no agent state is ever touched concurrently.
func (o *Orchestrator) run() {
	defer o.done.Done()

	ticker := time.NewTicker(o.config.TickInterval)
	defer ticker.Stop()
	report := time.NewTicker(o.config.ReportInterval)
	defer report.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return

		case <-ticker.C:
			tick := o.substrate.AdvanceTick()
			o.refreshOutgoing(tick)
			if err := o.leader.RunOnce(); err != nil {
				o.log.Warn("leader step failed", "err", err)
			}
			for _, m := range o.members {
				if err := m.runner.RunOnce(); err != nil {
					o.log.Warn("member step failed", "member", m.name, "err", err)
				}
			}

		case <-report.C:
			o.printReport()
		}
	}
}

// refreshOutgoing gives each member something new to say every so often.
func (o *Orchestrator) refreshOutgoing(tick uint64) {
	for i, m := range o.members {
		payload := &protocol.PeerPayload{
			Econ: &protocol.EconInfo{
				Credits:        float64(1000*i) + float64(tick),
				SharableEnergy: uint32(rand.Intn(50000)),
			},
		}
		if tick%20 == uint64(i%20) {
			payload.Attack = []protocol.AttackRequest{{
				Room:     fmt.Sprintf("E%dS%d", rand.Intn(10), rand.Intn(10)),
				Priority: rand.Float64(),
			}}
		}
		m.syncer.SetOutgoing(payload)
	}
}

func (o *Orchestrator) printReport() {
	tick := o.substrate.Tick()
	rec := o.leaderSvc.KeyManager().Record()

	var out string
	out += fmt.Sprintf("=== Tick %d ===\n", tick)
	if rec.Key != nil {
		key := rec.Key.String()
		out += fmt.Sprintf("Shared key: %s...", key[:8])
		if rec.Expire != nil {
			out += fmt.Sprintf(" (expires tick %d)", *rec.Expire)
		}
		out += "\n"
	}

	for _, m := range o.members {
		peers := m.syncer.EligiblePeers()
		out += fmt.Sprintf("%s: roster=%d peers=%d\n", m.name, len(m.syncer.Roster()), len(peers))

		seen := make([]string, 0, len(peers))
		for _, peer := range peers {
			if p, ok := m.syncer.PeerData(peer); ok && p.Econ != nil {
				seen = append(seen, fmt.Sprintf("%s(credits=%.0f attacks=%d)", peer, p.Econ.Credits, len(p.Attack)))
			}
		}
		sort.Strings(seen)
		for _, s := range seen {
			out += "  sees " + s + "\n"
		}
	}
	out += "======================"
	fmt.Println(out)
}

// Shutdown stops the tick loop and waits for it to drain.
func (o *Orchestrator) Shutdown() error {
	o.cancel()
	o.done.Wait()
	return nil
}
