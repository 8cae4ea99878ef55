package services

import "github.com/awerar/allysync/protocol"

// RegisterAgentRequest registers an agent with the gateway substrate.
type RegisterAgentRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// WriteSegmentRequest carries one segment's contents.
type WriteSegmentRequest struct {
	Data []byte `json:"data"`
}

// SegmentResponse returns an own-segment read; Data is only meaningful
// once Settled is true.
type SegmentResponse struct {
	Settled bool   `json:"settled"`
	Data    []byte `json:"data,omitempty"`
}

// SubscribeRequest points the agent's subscription slot at a target.
type SubscribeRequest struct {
	Owner string `json:"owner"`
	ID    uint8  `json:"id"`
}

// SubscriptionResponse returns the subscription slot's settled result.
type SubscriptionResponse struct {
	Settled bool   `json:"settled"`
	Owner   string `json:"owner,omitempty"`
	ID      uint8  `json:"id,omitempty"`
	Data    []byte `json:"data,omitempty"`
}

// DeclareRequest replaces a public or active segment declaration.
type DeclareRequest struct {
	IDs []uint8 `json:"ids"`
}

// TransferRequest sends a resource transfer toward an address.
type TransferRequest struct {
	Resource    string `json:"resource"`
	Amount      uint32 `json:"amount"`
	Destination string `json:"destination"`
	Description string `json:"description"`
}

// TransfersResponse lists received transfers, most recent first.
type TransfersResponse struct {
	Transfers []protocol.Transfer `json:"transfers"`
}

// TickResponse reports the world tick.
type TickResponse struct {
	Tick uint64 `json:"tick"`
}

// StateResponse returns an agent's persisted scheduler state.
type StateResponse struct {
	Found bool               `json:"found"`
	State protocol.SyncState `json:"state"`
}

// StatusResponse is the generic success/error envelope.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
