// Package delivery hands finalized segment lists to SMS transports.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"smscard-gateway/coding"
	"smscard-gateway/formatter"
)

var (
	ErrUnknownGateway = errors.New("delivery: unknown gateway")
	ErrNoSegments     = errors.New("delivery: message has no segments")
	ErrNoRecipient    = errors.New("delivery: message has no recipient")
)

// ReceiptStatus is the state of one segment after a delivery attempt.
type ReceiptStatus string

const (
	StatusQueued ReceiptStatus = "queued"
	StatusSent   ReceiptStatus = "sent"
	StatusFailed ReceiptStatus = "failed"
)

// Message is a formatted message ready to be sent. TotalSegments is set when
// Segments is a subset of the original message, as on a retry.
type Message struct {
	ID            string                     `json:"id"`
	From          string                     `json:"from"`
	To            string                     `json:"to"`
	Encoding      coding.Encoding            `json:"encoding"`
	Segments      []formatter.MessageSegment `json:"segments"`
	TotalSegments int                        `json:"total_segments,omitempty"`
}

// Parts returns how many segments the whole message has.
func (m Message) Parts() int {
	if m.TotalSegments > 0 {
		return m.TotalSegments
	}
	return len(m.Segments)
}

// Validate checks what every gateway needs.
func (m Message) Validate() error {
	if m.To == "" {
		return ErrNoRecipient
	}
	if len(m.Segments) == 0 {
		return ErrNoSegments
	}
	return nil
}

// Receipt reports the outcome for one segment.
type Receipt struct {
	MessageID    string        `json:"message_id"`
	SegmentIndex int           `json:"segment_index"`
	ProviderID   string        `json:"provider_id,omitempty"`
	Status       ReceiptStatus `json:"status"`
	Error        string        `json:"error,omitempty"`
}

// Gateway accepts a segment list and returns one receipt per segment, in
// segment order. A returned error means the message as a whole could not be
// handed over; per-segment failures are reported in the receipts.
type Gateway interface {
	Name() string
	Deliver(ctx context.Context, msg Message) ([]Receipt, error)
}

// FirstFailed returns the first failed receipt, if any.
func FirstFailed(receipts []Receipt) (Receipt, bool) {
	for _, r := range receipts {
		if r.Status == StatusFailed {
			return r, true
		}
	}
	return Receipt{}, false
}

func failedReceipt(msg Message, seg formatter.MessageSegment, err error) Receipt {
	return Receipt{
		MessageID:    msg.ID,
		SegmentIndex: seg.Index,
		Status:       StatusFailed,
		Error:        err.Error(),
	}
}

// Registry looks gateways up by name.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
	fallback string
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

// Register adds g under its name. The first gateway registered becomes the
// default until SetDefault is called.
func (r *Registry) Register(g Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Name()] = g
	if r.fallback == "" {
		r.fallback = g.Name()
	}
}

// SetDefault selects the gateway used when a request names none.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gateways[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGateway, name)
	}
	r.fallback = name
	return nil
}

// Get returns the named gateway, or the default one for an empty name.
func (r *Registry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.fallback
	}
	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

// Names lists the registered gateways.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
