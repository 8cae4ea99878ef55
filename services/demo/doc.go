// Command demo runs a complete local alliance deployment for testing and
// development.
//
// The orchestrator starts everything in a single process:
//   - An in-memory substrate with a fixed-interval tick
//   - The alliance leader, minting and rotating the shared key
//   - A set of member agents that request the key, read the roster, and
//     publish randomized intelligence at each other
//
// The first member is ranked council; the rest are regular members, so
// the permission filter is visible in the reports (council attack plans
// flow, member attack plans are stripped).
//
// # Usage
//
//	go run ./services/demo [flags]
//
// # Flags
//
//	--members             Number of member agents (default: 4)
//	--tick                World tick interval (default: 200ms)
//	--report              Status report interval (default: 5s)
//	--key-lifetime        Shared key lifetime in ticks (default: 300)
//	--rotation-lookahead  Pre-staging window before expiry (default: 50)
//	--verbose             Debug logging
//
// # Example
//
//	go run ./services/demo --members=8 --tick=100ms --key-lifetime=120
//
// Status reports print each member's view of the alliance as syncs
// complete; with the default lifetime a key rotation happens about once
// a minute.
package main
