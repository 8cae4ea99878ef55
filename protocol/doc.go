// Package protocol implements encrypted alliance synchronization between
// mutually distrusting peer agents over a shared blob-storage substrate.
//
// Agents in a tick-driven world exchange small structured payloads (roster
// membership, resource and aid requests, intelligence) through host-managed
// storage "segments". Own segments write synchronously; a foreign segment
// is read in two phases: a subscription this tick, a settled result on a
// later tick. Payloads are sealed with a rotating shared key distributed
// out-of-band as tagged resource transfers.
//
// # Architecture
//
// The package is built leaf-first from four components:
//
//  1. SegmentChannel wraps the host's two-phase remote-read primitive and
//     its single foreign-subscription slot, classifying every read into a
//     tagged Outcome (pending, empty, malformed, value).
//
//  2. KeyManager owns the persisted key record (active key, pending
//     replacement, expiry tick, leader address), scans inbound transfers
//     for key deliveries, issues key requests, and applies the expiry
//     transition exactly once per boundary.
//
//  3. Syncer is the per-tick orchestrator: it polls the leader's sealed
//     roster segment, reconciles key rotation, round-robins through
//     eligible peers' data segments one peer per eligible tick, and
//     publishes the agent's own sealed payload.
//
//  4. LeaderService is the roster authority's counterpart: it mints and
//     rotates the shared key, publishes the sealed roster with rotation
//     metadata, and answers key requests with key deliveries.
//
// # Failure model
//
// Nothing in this package blocks or terminates the process. Every read
// that cannot complete synchronously reports a pending outcome and retries
// on a later tick. A settled-but-undecodable segment retains the previous
// cached value. A signature mismatch after decryption is ambiguous between
// a stale key and corruption; it is resolved conservatively by dropping
// the active key and forcing a fresh request cycle, unless the poll was
// already made with the newest known key, in which case it is treated as
// transient and simply retried.
//
// All state machines run single-threaded: the external scheduler invokes
// Step once per tick and logic runs to completion with no suspension.
package protocol
