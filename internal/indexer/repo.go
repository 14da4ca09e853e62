package indexer

import (
	"context"

	"github.com/0xPexy/sentra-checkout/internal/checkout"
	"github.com/0xPexy/sentra-checkout/internal/store"
)

type Repo interface {
	GetLogCursor(ctx context.Context, chainID uint64, address string) (*store.LogCursor, error)
	UpsertLogCursor(ctx context.Context, cursor *store.LogCursor) error
	RecordExecution(ctx context.Context, exec *store.InstallmentExecution) (*store.ExecutionResult, error)
}

// StoreAdapter persists through the repository and publishes an event for
// every newly recorded installment.
type StoreAdapter struct {
	repo *store.Repository
	sink checkout.EventSink
}

func NewStoreAdapter(repo *store.Repository, sink checkout.EventSink) *StoreAdapter {
	return &StoreAdapter{repo: repo, sink: sink}
}

func (a *StoreAdapter) GetLogCursor(ctx context.Context, chainID uint64, address string) (*store.LogCursor, error) {
	return a.repo.GetLogCursor(ctx, chainID, address)
}

func (a *StoreAdapter) UpsertLogCursor(ctx context.Context, cursor *store.LogCursor) error {
	return a.repo.UpsertLogCursor(ctx, cursor)
}

func (a *StoreAdapter) RecordExecution(ctx context.Context, exec *store.InstallmentExecution) (*store.ExecutionResult, error) {
	res, err := a.repo.RecordExecution(ctx, exec)
	if err != nil || res == nil || !res.Recorded || a.sink == nil {
		return res, err
	}
	a.sink.Publish(executionEvent(res))
	return res, nil
}

func executionEvent(res *store.ExecutionResult) checkout.Event {
	sub := res.Subscription
	seq := res.Execution.Sequence
	ev := checkout.Event{
		Type:         checkout.EventExecuted,
		SessionID:    sub.SessionID,
		PlanID:       sub.PlanID,
		Owner:        sub.Owner,
		Account:      sub.Account,
		Validator:    sub.Validator,
		Installments: sub.Installments,
		SubscriberID: sub.SubscriberID,
		Sequence:     &seq,
		TxHash:       res.Execution.TxHash,
		At:           res.Execution.BlockTime,
	}
	if !res.Execution.Success {
		ev.Type = checkout.EventExecutionFailed
		ev.Error = "installment operation reverted"
	}
	return ev
}
