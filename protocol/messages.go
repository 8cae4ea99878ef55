package protocol

import "encoding/json"

// PeerPayload is one member's published data segment: outstanding requests
// and shared intelligence. Every field is an optional plain record; game
// logic appends them, the sync core only moves them.
type PeerPayload struct {
	Resource []ResourceRequest    `json:"resource,omitempty"`
	Defense  []DefenseRequest     `json:"defense,omitempty"`
	Attack   []AttackRequest      `json:"attack,omitempty"`
	Work     []WorkRequest        `json:"work,omitempty"`
	Funnel   []FunnelRequest      `json:"funnel,omitempty"`
	Player   []PlayerIntel        `json:"player,omitempty"`
	Econ     *EconInfo            `json:"econ,omitempty"`
	Rooms    map[string]RoomIntel `json:"rooms,omitempty"`
}

// HasContent reports whether any field is populated. A record without
// content publishes as an empty marker instead of sealed bytes.
func (p *PeerPayload) HasContent() bool {
	if p == nil {
		return false
	}
	return len(p.Resource) > 0 || len(p.Defense) > 0 || len(p.Attack) > 0 ||
		len(p.Work) > 0 || len(p.Funnel) > 0 || len(p.Player) > 0 ||
		p.Econ != nil || len(p.Rooms) > 0
}

// ResourceRequest asks peers for a resource delivery.
type ResourceRequest struct {
	Room     string  `json:"room"`
	Resource string  `json:"resource"`
	Amount   uint32  `json:"amount"`
	Priority float64 `json:"priority"`

	// Terminal requests delivery to the room's terminal rather than
	// storage.
	Terminal bool `json:"terminal,omitempty"`
}

// DefenseRequest asks peers to help defend a room.
type DefenseRequest struct {
	Room     string  `json:"room"`
	Priority float64 `json:"priority"`
}

// AttackRequest asks peers to strike a hostile room.
type AttackRequest struct {
	Room     string  `json:"room"`
	Priority float64 `json:"priority"`
}

// WorkRequest asks peers for builder or repair support.
type WorkRequest struct {
	Room     string  `json:"room"`
	Priority float64 `json:"priority"`
	WorkType string  `json:"workType"`
}

// FunnelRequest asks peers to funnel energy toward an upgrade goal.
type FunnelRequest struct {
	Room      string  `json:"room"`
	Goal      string  `json:"goal"`
	MaxAmount uint32  `json:"maxAmount,omitempty"`
	Priority  float64 `json:"priority"`
}

// PlayerIntel shares standing information about a third-party player.
type PlayerIntel struct {
	Name         string  `json:"name"`
	Hate         float64 `json:"hate,omitempty"`
	LastAttacked *uint64 `json:"lastAttacked,omitempty"`
}

// EconInfo shares a member's economic snapshot.
type EconInfo struct {
	Credits        float64 `json:"credits"`
	SharableEnergy uint32  `json:"sharableEnergy,omitempty"`
	EnergyIncome   float64 `json:"energyIncome,omitempty"`
}

// RoomIntel shares scouting data for a room.
type RoomIntel struct {
	PlayerName     string  `json:"playerName,omitempty"`
	Level          uint8   `json:"level,omitempty"`
	TowerCount     uint8   `json:"towerCount,omitempty"`
	AvgRampartHits float64 `json:"avgRampartHits,omitempty"`
	LastScout      uint64  `json:"lastScout"`
}

// UnmarshalMessage deserializes a message from JSON.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
