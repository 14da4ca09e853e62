package submit

import (
	"context"
	"log"
	"strings"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/batch"
	"github.com/0xPexy/sentra-checkout/internal/userop"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const PaymentTypeSubscription = "subscription"

// Metadata identifies the subscription a batch belongs to.
type Metadata struct {
	Owner          common.Address
	PlanID         string
	SubscriptionID string
	SessionID      string
	PaylinkURL     string
}

type PaymentParams struct {
	SubscriberID   string         `json:"subscriberId"`
	Owner          common.Address `json:"owner"`
	PlanID         string         `json:"planId"`
	SubscriptionID string         `json:"subscriptionId"`
	PaylinkURL     string         `json:"paylinkUrl"`
	SessionID      string         `json:"sessionId"`
}

type Request struct {
	Operations     []*userop.Operation `json:"userOps"`
	ExecutionTimes []int64             `json:"executionTimes"`
	PaymentType    string              `json:"paymentType"`
	PaymentParams  PaymentParams       `json:"paymentTypeParams"`
}

type Receipt struct {
	SubscriberID string `json:"subscriberId"`
	ID           string `json:"id,omitempty"`
	MerkleRoot   string `json:"merkleRoot,omitempty"`
	Status       string `json:"status,omitempty"`
}

// Aggregator is the aggregate-signature submission service.
type Aggregator interface {
	Submit(ctx context.Context, req Request) (*Receipt, error)
}

type Submitter struct {
	agg    Aggregator
	newID  func() string
	logger *log.Logger
}

func New(agg Aggregator, logger *log.Logger) *Submitter {
	return &Submitter{agg: agg, newID: func() string { return uuid.NewString() }, logger: logger}
}

// Submit hands a complete batch to the aggregator. A failed submission is
// returned as-is; nothing is retried.
func (s *Submitter) Submit(ctx context.Context, b *batch.SignedBatch, meta Metadata) (*Receipt, error) {
	if b == nil {
		return nil, apperr.New(apperr.InvalidInput, "submit", "no batch")
	}
	if err := b.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "submit", err)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Upstream("submit", err)
	}
	subscriberID := s.newID()
	req := Request{
		Operations:     b.Operations,
		ExecutionTimes: b.Schedule,
		PaymentType:    PaymentTypeSubscription,
		PaymentParams: PaymentParams{
			SubscriberID:   subscriberID,
			Owner:          meta.Owner,
			PlanID:         meta.PlanID,
			SubscriptionID: meta.SubscriptionID,
			PaylinkURL:     meta.PaylinkURL,
			SessionID:      meta.SessionID,
		},
	}
	receipt, err := s.agg.Submit(ctx, req)
	if err != nil {
		s.logf("submission failed: subscriber=%s session=%s err=%v", subscriberID, meta.SessionID, err)
		return nil, apperr.Upstream("aggregate submission", err)
	}
	if receipt == nil {
		return nil, apperr.New(apperr.MalformedResponse, "aggregate submission", "empty receipt")
	}
	if receipt.SubscriberID == "" {
		receipt.SubscriberID = subscriberID
	}
	s.logf("submitted subscription: subscriber=%s session=%s installments=%d", subscriberID, meta.SessionID, len(b.Operations))
	return receipt, nil
}

func (m Metadata) validate() error {
	switch {
	case m.Owner == (common.Address{}):
		return apperr.New(apperr.InvalidInput, "submit", "owner address required")
	case strings.TrimSpace(m.PlanID) == "":
		return apperr.New(apperr.InvalidInput, "submit", "plan id required")
	case strings.TrimSpace(m.SubscriptionID) == "":
		return apperr.New(apperr.InvalidInput, "submit", "subscription id required")
	case strings.TrimSpace(m.SessionID) == "":
		return apperr.New(apperr.InvalidInput, "submit", "session id required")
	}
	return nil
}

func (s *Submitter) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
