package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/awerar/allysync/protocol"
)

// AgentSnapshot is one agent's persisted substrate state.
type AgentSnapshot struct {
	Address  string
	Segments map[uint8][]byte
	State    *protocol.SyncState
}

// Snapshot is the full persisted substrate state, restored on startup.
type Snapshot struct {
	Tick   uint64
	Agents map[string]*AgentSnapshot
}

// SubstrateStore persists the substrate world so a gateway restart does not
// lose segments, agent registrations, or the tick counter.
type SubstrateStore interface {
	SaveAgent(name, address string) error
	SaveSegment(agent string, id uint8, data []byte) error
	SaveAgentState(agent string, state protocol.SyncState) error
	SaveTick(tick uint64) error
	LoadSnapshot() (*Snapshot, error)
	Close() error
}

// PostgresStore implements SubstrateStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS substrate_agents (
		name VARCHAR(64) PRIMARY KEY,
		address VARCHAR(64) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS substrate_segments (
		agent VARCHAR(64) NOT NULL,
		segment_id SMALLINT NOT NULL,
		data BYTEA,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (agent, segment_id)
	);

	CREATE TABLE IF NOT EXISTS substrate_states (
		agent VARCHAR(64) PRIMARY KEY,
		next_leader_sync BIGINT NOT NULL,
		next_peer_sync BIGINT NOT NULL,
		peer_cursor INT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS substrate_meta (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		tick BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_segments_agent ON substrate_segments(agent);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveAgent upserts an agent registration.
func (s *PostgresStore) SaveAgent(name, address string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO substrate_agents (name, address, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (name) DO UPDATE SET
		address = EXCLUDED.address,
		updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, name, address)
	return err
}

// SaveSegment upserts one segment's contents.
func (s *PostgresStore) SaveSegment(agent string, id uint8, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO substrate_segments (agent, segment_id, data, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (agent, segment_id) DO UPDATE SET
		data = EXCLUDED.data,
		updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, agent, int16(id), data)
	return err
}

// SaveAgentState upserts an agent's durable scheduler state.
func (s *PostgresStore) SaveAgentState(agent string, state protocol.SyncState) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO substrate_states (agent, next_leader_sync, next_peer_sync, peer_cursor, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (agent) DO UPDATE SET
		next_leader_sync = EXCLUDED.next_leader_sync,
		next_peer_sync = EXCLUDED.next_peer_sync,
		peer_cursor = EXCLUDED.peer_cursor,
		updated_at = NOW()
	`
	_, err := s.db.ExecContext(ctx, query, agent,
		int64(state.NextLeaderSync), int64(state.NextPeerSync), state.PeerCursor)
	return err
}

// SaveTick persists the world tick counter.
func (s *PostgresStore) SaveTick(tick uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO substrate_meta (id, tick) VALUES (1, $1)
	ON CONFLICT (id) DO UPDATE SET tick = EXCLUDED.tick
	`
	_, err := s.db.ExecContext(ctx, query, int64(tick))
	return err
}

// LoadSnapshot restores the full persisted substrate state.
func (s *PostgresStore) LoadSnapshot() (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap := &Snapshot{Agents: make(map[string]*AgentSnapshot)}

	var tick int64
	err := s.db.QueryRowContext(ctx, "SELECT tick FROM substrate_meta WHERE id = 1").Scan(&tick)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("loading tick: %w", err)
	}
	snap.Tick = uint64(tick)

	rows, err := s.db.QueryContext(ctx, "SELECT name, address FROM substrate_agents")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name, address string
		if err := rows.Scan(&name, &address); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		snap.Agents[name] = &AgentSnapshot{Address: address, Segments: make(map[uint8][]byte)}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	segRows, err := s.db.QueryContext(ctx, "SELECT agent, segment_id, data FROM substrate_segments")
	if err != nil {
		return nil, err
	}
	defer segRows.Close()
	for segRows.Next() {
		var (
			agent string
			id    int16
			data  []byte
		)
		if err := segRows.Scan(&agent, &id, &data); err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		if a, ok := snap.Agents[agent]; ok {
			a.Segments[uint8(id)] = data
		}
	}
	if err := segRows.Err(); err != nil {
		return nil, err
	}

	stateRows, err := s.db.QueryContext(ctx, "SELECT agent, next_leader_sync, next_peer_sync, peer_cursor FROM substrate_states")
	if err != nil {
		return nil, err
	}
	defer stateRows.Close()
	for stateRows.Next() {
		var (
			agent                string
			nextLeader, nextPeer int64
			cursor               int
		)
		if err := stateRows.Scan(&agent, &nextLeader, &nextPeer, &cursor); err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		if a, ok := snap.Agents[agent]; ok {
			a.State = &protocol.SyncState{
				NextLeaderSync: uint64(nextLeader),
				NextPeerSync:   uint64(nextPeer),
				PeerCursor:     cursor,
			}
		}
	}
	return snap, stateRows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InMemoryStore implements SubstrateStore for testing and the in-process
// demo, without a database.
type InMemoryStore struct {
	mu     sync.Mutex
	tick   uint64
	agents map[string]*AgentSnapshot
}

// NewInMemoryStore creates an in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{agents: make(map[string]*AgentSnapshot)}
}

func (s *InMemoryStore) agent(name string) *AgentSnapshot {
	a, ok := s.agents[name]
	if !ok {
		a = &AgentSnapshot{Segments: make(map[uint8][]byte)}
		s.agents[name] = a
	}
	return a
}

// SaveAgent stores an agent registration in memory.
func (s *InMemoryStore) SaveAgent(name, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agent(name).Address = address
	return nil
}

// SaveSegment stores one segment's contents in memory.
func (s *InMemoryStore) SaveSegment(agent string, id uint8, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agent(agent).Segments[id] = append([]byte(nil), data...)
	return nil
}

// SaveAgentState stores an agent's scheduler state in memory.
func (s *InMemoryStore) SaveAgentState(agent string, state protocol.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := state
	s.agent(agent).State = &st
	return nil
}

// SaveTick stores the tick counter in memory.
func (s *InMemoryStore) SaveTick(tick uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = tick
	return nil
}

// LoadSnapshot returns a copy of the stored state.
func (s *InMemoryStore) LoadSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{Tick: s.tick, Agents: make(map[string]*AgentSnapshot)}
	for name, a := range s.agents {
		copied := &AgentSnapshot{Address: a.Address, Segments: make(map[uint8][]byte)}
		for id, data := range a.Segments {
			copied.Segments[id] = append([]byte(nil), data...)
		}
		if a.State != nil {
			st := *a.State
			copied.State = &st
		}
		snap.Agents[name] = copied
	}
	return snap, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
