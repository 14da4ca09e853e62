package store

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetSubscription(ctx context.Context, subscriberID string) (*Subscription, error) {
	var sub Subscription
	err := r.db.WithContext(ctx).Where("subscriber_id = ?", subscriberID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// ExecutionResult reports what RecordExecution matched. Recorded is false
// when the operation had already been stored.
type ExecutionResult struct {
	Subscription Subscription
	Execution    InstallmentExecution
	Recorded     bool
}

// RecordExecution attributes an executed operation to the subscription whose
// nonce range [base, base+installments) contains it. It returns nil when no
// subscription of the sender matches.
func (r *Repository) RecordExecution(ctx context.Context, exec *InstallmentExecution) (*ExecutionResult, error) {
	exec.Sender = NormalizeAddress(exec.Sender)
	exec.UserOpHash = strings.ToLower(exec.UserOpHash)
	exec.TxHash = strings.ToLower(exec.TxHash)
	nonce, ok := new(big.Int).SetString(exec.Nonce, 10)
	if !ok {
		return nil, errors.New("store: execution nonce is not a decimal integer")
	}

	var out *ExecutionResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subs []Subscription
		if err := tx.Where("chain_id = ? AND account = ?", exec.ChainID, exec.Sender).Find(&subs).Error; err != nil {
			return err
		}
		sub, seq, found := matchNonce(subs, nonce)
		if !found {
			return nil
		}
		exec.SubscriberID = sub.SubscriberID
		exec.Sequence = seq

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_op_hash"}},
			DoNothing: true,
		}).Create(exec)
		if res.Error != nil {
			return res.Error
		}
		out = &ExecutionResult{Subscription: sub, Execution: *exec}
		if res.RowsAffected == 0 {
			return nil
		}
		out.Recorded = true

		if exec.Success {
			sub.Executed++
		} else {
			sub.Failed++
		}
		sub.Status = SubscriptionActive
		if sub.Executed+sub.Failed >= sub.Installments {
			sub.Status = SubscriptionCompleted
		}
		if err := tx.Model(&Subscription{}).Where("id = ?", sub.ID).Updates(map[string]any{
			"executed": sub.Executed,
			"failed":   sub.Failed,
			"status":   sub.Status,
		}).Error; err != nil {
			return err
		}
		out.Subscription = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func matchNonce(subs []Subscription, nonce *big.Int) (Subscription, int, bool) {
	for _, sub := range subs {
		base, ok := new(big.Int).SetString(sub.BaseNonce, 10)
		if !ok || sub.Installments <= 0 {
			continue
		}
		offset := new(big.Int).Sub(nonce, base)
		if offset.Sign() < 0 || offset.Cmp(big.NewInt(int64(sub.Installments))) >= 0 {
			continue
		}
		return sub, int(offset.Int64()), true
	}
	return Subscription{}, 0, false
}

func (r *Repository) ListExecutions(ctx context.Context, subscriberID string) ([]InstallmentExecution, error) {
	var out []InstallmentExecution
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Order("sequence asc").
		Find(&out).Error
	return out, err
}

func (r *Repository) GetLogCursor(ctx context.Context, chainID uint64, address string) (*LogCursor, error) {
	var cursor LogCursor
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND address = ?", chainID, strings.ToLower(address)).
		First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cursor, nil
}

func (r *Repository) UpsertLogCursor(ctx context.Context, cursor *LogCursor) error {
	cursor.Address = strings.ToLower(cursor.Address)
	cursor.LastTxHash = strings.ToLower(cursor.LastTxHash)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain_id"}, {Name: "address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_block":     cursor.LastBlock,
			"last_tx_hash":   cursor.LastTxHash,
			"last_log_index": cursor.LastLogIndex,
			"updated_at":     gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(cursor).Error
}
