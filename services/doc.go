// Package services provides the deployment glue around the sync core: the
// substrate world, its persistence, the HTTP gateway, and the host
// adapters that bind the protocol state machines to a world.
//
// # Components
//
//   - Substrate: the authoritative in-process world — per-agent segments
//     with two-phase settled reads, single-slot foreign subscriptions, and
//     transfer routing by address. Ticks advance explicitly.
//   - SubstrateStore: persistence behind the substrate, with PostgresStore
//     for deployments and InMemoryStore for tests and the demo.
//   - Gateway: chi HTTP routes exposing the substrate so agents can run
//     out of process, plus the tick-advance admin route and ticker.
//   - LocalHost / HTTPHost: per-agent implementations of the protocol
//     collaborator interfaces (SegmentStore, Clock, TransferLedger,
//     StateStore), in-process and over the gateway API respectively.
//   - AgentRunner: drives a Syncer and/or LeaderService one step per
//     observed tick, with metrics counters.
//   - FileStateStore: JSON-file scheduler state for standalone agents.
//
// # Topology
//
// A deployment runs one gateway (cmd/gateway) owning the substrate and
// the tick, and any number of agents (cmd/agent) connecting over HTTP.
// One agent runs the LeaderService; the rest run Syncers. The demo under
// services/demo wires the same pieces in a single process.
package services
