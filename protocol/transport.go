package protocol

import "errors"

// ErrSendThrottled reports that the per-tick send budget is spent.
var ErrSendThrottled = errors.New("transfer already sent this tick")

// ThrottledLedger decorates a TransferLedger with a once-per-tick send
// limit. The host's own transfer surface is composed, never mutated.
type ThrottledLedger struct {
	inner TransferLedger
	clock Clock

	sentAny  bool
	lastSend uint64
}

// NewThrottledLedger wraps a ledger with the per-tick throttle.
func NewThrottledLedger(inner TransferLedger, clock Clock) *ThrottledLedger {
	return &ThrottledLedger{inner: inner, clock: clock}
}

// RecentInboundTransfers passes through to the wrapped ledger.
func (l *ThrottledLedger) RecentInboundTransfers() []Transfer {
	return l.inner.RecentInboundTransfers()
}

// SendTransfer forwards at most one successful send per tick; further
// sends defer with ErrSendThrottled.
func (l *ThrottledLedger) SendTransfer(resource string, amount uint32, destination string, description string) error {
	tick := l.clock.CurrentTick()
	if l.sentAny && l.lastSend == tick {
		return ErrSendThrottled
	}

	if err := l.inner.SendTransfer(resource, amount, destination, description); err != nil {
		return err
	}

	l.sentAny = true
	l.lastSend = tick
	return nil
}
