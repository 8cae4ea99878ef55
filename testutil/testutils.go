package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/awerar/allysync/crypto"
	"github.com/awerar/allysync/protocol"
)

// =====================================
// Configuration Generators
// =====================================

// SyncConfigOption is a function that modifies a SyncConfig.
type SyncConfigOption func(*protocol.SyncConfig)

// WithSelf sets the agent's own identity.
func WithSelf(name string) SyncConfigOption {
	return func(cfg *protocol.SyncConfig) {
		cfg.Self = name
	}
}

// WithLeader sets the leader identity and address.
func WithLeader(name, room string) SyncConfigOption {
	return func(cfg *protocol.SyncConfig) {
		cfg.LeaderName = name
		cfg.LeaderRoom = room
	}
}

// WithIntervals sets the roster and peer poll intervals.
func WithIntervals(leaderSync, peerSync uint64) SyncConfigOption {
	return func(cfg *protocol.SyncConfig) {
		cfg.LeaderSyncInterval = leaderSync
		cfg.PeerSyncInterval = peerSync
	}
}

// WithKeyRotation sets the key lifetime and the rotation lookahead.
func WithKeyRotation(lifetime, lookahead uint64) SyncConfigOption {
	return func(cfg *protocol.SyncConfig) {
		cfg.KeyLifetime = lifetime
		cfg.RotationLookahead = lookahead
	}
}

// WithSegments sets the data and key segment IDs.
func WithSegments(data, key uint8) SyncConfigOption {
	return func(cfg *protocol.SyncConfig) {
		cfg.DataSegmentID = data
		cfg.KeySegmentID = key
	}
}

// NewTestSyncConfig creates a normalized sync configuration with test
// defaults that can be customized using options.
func NewTestSyncConfig(options ...SyncConfigOption) *protocol.SyncConfig {
	cfg := &protocol.SyncConfig{
		Self:       "Me",
		LeaderName: "Leader",
		LeaderRoom: "W0N0",
	}
	for _, option := range options {
		option(cfg)
	}
	cfg.Normalize()
	return cfg
}

// =====================================
// Key Generators
// =====================================

// GenerateTestKey derives a deterministic shared key from a seed string,
// so tests can name the keys they expect.
func GenerateTestKey(seed string) *crypto.SharedKey {
	return crypto.DeriveSharedKey([]byte(seed))
}

// GenerateTestKeys derives count distinct deterministic keys.
func GenerateTestKeys(count int) []*crypto.SharedKey {
	keys := make([]*crypto.SharedKey, count)
	for i := range keys {
		keys[i] = GenerateTestKey(fmt.Sprintf("test-key-%d", i))
	}
	return keys
}

// =====================================
// Roster Generators
// =====================================

// RosterOption is a function that modifies a Roster.
type RosterOption func(protocol.Roster)

// WithRank sets one peer's rank, adding the peer if absent.
func WithRank(name string, rank protocol.Rank) RosterOption {
	return func(r protocol.Roster) {
		r[name] = rank
	}
}

// WithCouncil promotes the named peers to council.
func WithCouncil(names ...string) RosterOption {
	return func(r protocol.Roster) {
		for _, name := range names {
			r[name] = protocol.RankCouncil
		}
	}
}

// NewTestRoster creates a roster with every named peer at member rank,
// customizable using options.
func NewTestRoster(members []string, options ...RosterOption) protocol.Roster {
	roster := protocol.Roster{}
	for _, name := range members {
		roster[name] = protocol.RankMember
	}
	for _, option := range options {
		option(roster)
	}
	return roster
}

// =====================================
// Payload Generators
// =====================================

// PayloadOption is a function that modifies a PeerPayload.
type PayloadOption func(*protocol.PeerPayload)

// WithCredits sets the economic snapshot's credit balance.
func WithCredits(credits float64) PayloadOption {
	return func(p *protocol.PeerPayload) {
		if p.Econ == nil {
			p.Econ = &protocol.EconInfo{}
		}
		p.Econ.Credits = credits
	}
}

// WithSharableEnergy sets the economic snapshot's sharable energy.
func WithSharableEnergy(energy uint32) PayloadOption {
	return func(p *protocol.PeerPayload) {
		if p.Econ == nil {
			p.Econ = &protocol.EconInfo{}
		}
		p.Econ.SharableEnergy = energy
	}
}

// WithAttackRequest appends an attack request.
func WithAttackRequest(room string, priority float64) PayloadOption {
	return func(p *protocol.PeerPayload) {
		p.Attack = append(p.Attack, protocol.AttackRequest{Room: room, Priority: priority})
	}
}

// WithDefenseRequest appends a defense request.
func WithDefenseRequest(room string, priority float64) PayloadOption {
	return func(p *protocol.PeerPayload) {
		p.Defense = append(p.Defense, protocol.DefenseRequest{Room: room, Priority: priority})
	}
}

// WithResourceRequest appends a resource request.
func WithResourceRequest(room, resource string, amount uint32) PayloadOption {
	return func(p *protocol.PeerPayload) {
		p.Resource = append(p.Resource, protocol.ResourceRequest{
			Room:     room,
			Resource: resource,
			Amount:   amount,
			Priority: 1,
		})
	}
}

// WithRoomIntel records scouting data for a room.
func WithRoomIntel(room, playerName string, level uint8) PayloadOption {
	return func(p *protocol.PeerPayload) {
		if p.Rooms == nil {
			p.Rooms = map[string]protocol.RoomIntel{}
		}
		p.Rooms[room] = protocol.RoomIntel{PlayerName: playerName, Level: level, LastScout: 1}
	}
}

// GenerateTestPayload creates a peer payload with a populated economic
// snapshot, customizable using options.
func GenerateTestPayload(options ...PayloadOption) *protocol.PeerPayload {
	p := &protocol.PeerPayload{
		Econ: &protocol.EconInfo{Credits: 100, SharableEnergy: 10000},
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// =====================================
// Sealed Blob Generators
// =====================================

// SealMessage JSON-serializes v and seals it under key, returning the
// wire bytes a data segment would carry.
func SealMessage(key *crypto.SharedKey, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return crypto.MarshalWords(crypto.Seal(key, string(data))), nil
}

// SealedRoster builds the sealed wire form of a leader roster segment.
func SealedRoster(key *crypto.SharedKey, roster protocol.Roster, expire *uint64, leaderRoom string) ([]byte, error) {
	return SealMessage(key, &protocol.RosterPayload{
		Ranks:      roster,
		Expire:     expire,
		LeaderRoom: leaderRoom,
	})
}
