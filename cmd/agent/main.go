// Command agent runs one alliance agent against a gateway.
//
// A regular agent polls the leader's roster, requests the shared key, and
// syncs peer data. With leader: true the agent instead mints and rotates
// the key, answers key requests, and publishes the roster configured under
// members.
//
// # Configuration File
//
//	gateway_url: "http://localhost:8080"
//	name: "Alice"
//	address: "W1N1"
//	state_file: ""        # optional; default keeps scheduler state on the gateway
//	sync:
//	  leader_name: "Leader"
//	  leader_room: "W0N0"
//	  peer_sync_interval: 10
//
// Leader example:
//
//	gateway_url: "http://localhost:8080"
//	name: "Leader"
//	address: "W0N0"
//	leader: true
//	sync:
//	  leader_name: "Leader"
//	  leader_room: "W0N0"
//	  key_lifetime: 20000
//	members:
//	  Alice: {rank: council, address: "W1N1"}
//	  Bob: {rank: member, address: "W2N2"}
//
// # Usage
//
//	go run ./cmd/agent --config=alice.yaml
//	go run ./cmd/agent --gateway=http://localhost:8080 --name=Alice --address=W1N1
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awerar/allysync/cmd/common"
	"github.com/awerar/allysync/protocol"
	"github.com/awerar/allysync/services"
)

type memberEntry struct {
	Rank    protocol.Rank `yaml:"rank"`
	Address string        `yaml:"address"`
}

type agentConfig struct {
	GatewayURL   string        `yaml:"gateway_url"`
	Name         string        `yaml:"name"`
	Address      string        `yaml:"address"`
	Leader       bool          `yaml:"leader"`
	StateFile    string        `yaml:"state_file"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LogLevel     string        `yaml:"log_level"`
	LogJSON      bool          `yaml:"log_json"`

	Sync    protocol.SyncConfig    `yaml:"sync"`
	Members map[string]memberEntry `yaml:"members"`
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		gatewayURL = flag.String("gateway", "", "Gateway base URL")
		name       = flag.String("name", "", "Agent name")
		address    = flag.String("address", "", "Agent address for transfer routing")
		leader     = flag.Bool("leader", false, "Run the leader service instead of a member syncer")
		stateFile  = flag.String("state-file", "", "Keep scheduler state in a local file instead of on the gateway")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logJSON    = flag.Bool("log-json", false, "JSON log output")
	)
	flag.Parse()

	cfg := &agentConfig{}
	if *configPath != "" {
		if err := common.LoadYAML(*configPath, cfg); err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *gatewayURL != "" {
		cfg.GatewayURL = *gatewayURL
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *leader {
		cfg.Leader = true
	}
	if *stateFile != "" {
		cfg.StateFile = *stateFile
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logJSON {
		cfg.LogJSON = true
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *agentConfig) error {
	if cfg.GatewayURL == "" || cfg.Name == "" || cfg.Address == "" {
		return fmt.Errorf("gateway URL, name, and address are required")
	}

	log, err := common.SetupLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	log = log.With("agent", cfg.Name)

	host, err := services.NewHTTPHost(log, cfg.GatewayURL, cfg.Name, cfg.Address)
	if err != nil {
		return fmt.Errorf("connecting to gateway: %w", err)
	}

	if cfg.Sync.Self == "" {
		cfg.Sync.Self = cfg.Name
	}

	var (
		leaderSvc *protocol.LeaderService
		syncer    *protocol.Syncer
	)
	if cfg.Leader {
		leaderSvc = protocol.NewLeaderService(&cfg.Sync, log, host, host, host)

		roster := protocol.Roster{}
		addresses := map[string]string{}
		for name, entry := range cfg.Members {
			if !entry.Rank.Valid() {
				return fmt.Errorf("member %s has unknown rank %q", name, entry.Rank)
			}
			roster[name] = entry.Rank
			addresses[name] = entry.Address
		}
		leaderSvc.SetMembers(roster, addresses)
		log.Info("running as leader", "members", len(roster))
	} else {
		var states protocol.StateStore = host
		if cfg.StateFile != "" {
			states = services.NewFileStateStore(log, cfg.StateFile)
		}
		syncer = protocol.NewSyncer(&cfg.Sync, log, host, host, host, states)
		log.Info("running as member", "leader", cfg.Sync.LeaderName)
	}

	runner := services.NewAgentRunner(log, cfg.Name, host, leaderSvc, syncer)
	if cfg.PollInterval > 0 {
		runner.PollInterval = cfg.PollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	return runner.Run(ctx)
}
