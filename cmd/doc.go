// Package cmd provides the allysync service binaries.
//
// # Commands
//
// gateway: Runs the substrate the alliance lives on. Owns the world tick,
// segment storage, transfer routing, and optional PostgreSQL persistence.
//
//	go run ./cmd/gateway --addr=:8080 --tick=1s
//	go run ./cmd/gateway --config=gateway.yaml
//
// agent: Runs one alliance agent against a gateway, either as a member
// syncer or as the leader.
//
//	go run ./cmd/agent --gateway=http://localhost:8080 --name=Alice --address=W1N1
//	go run ./cmd/agent --config=leader.yaml
//
// # Configuration
//
// Both commands support YAML configuration files via the --config flag.
// Command-line flags override config file values. See each command's doc
// comment for the recognized fields.
//
// # Local deployment
//
// A minimal alliance on one machine:
//
//	go run ./cmd/gateway --addr=:8080 --tick=500ms &
//	go run ./cmd/agent --config=leader.yaml &
//	go run ./cmd/agent --gateway=http://localhost:8080 --name=Alice --address=W1N1 &
//	go run ./cmd/agent --gateway=http://localhost:8080 --name=Bob --address=W2N2 &
//
// For a single-process variant with fake traffic, see services/demo.
package cmd
