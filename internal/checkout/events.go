package checkout

import (
	"time"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
)

const (
	EventBuilt     = "built"
	EventSubmitted = "submitted"
	EventFailed    = "failed"

	// Emitted by the installment tracker once an operation lands on chain.
	EventExecuted        = "executed"
	EventExecutionFailed = "execution_failed"
)

type Event struct {
	Type         string      `json:"type"`
	SessionID    string      `json:"sessionId"`
	PlanID       string      `json:"planId"`
	Owner        string      `json:"owner"`
	Account      string      `json:"account,omitempty"`
	Validator    string      `json:"validator,omitempty"`
	Installments int         `json:"installments,omitempty"`
	SubscriberID string      `json:"subscriberId,omitempty"`
	Sequence     *int        `json:"sequence,omitempty"`
	TxHash       string      `json:"txHash,omitempty"`
	Kind         apperr.Kind `json:"kind,omitempty"`
	Error        string      `json:"error,omitempty"`
	Retryable    bool        `json:"retryable,omitempty"`
	At           time.Time   `json:"at"`
}

// EventSink receives subscription lifecycle events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

type discardSink struct{}

func (discardSink) Publish(Event) {}
