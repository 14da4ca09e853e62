package store

import (
	"context"
	"errors"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/validator"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *DB) *Repository { return &Repository{db: db.DB} }

// TouchPayer records a sign-in for address, creating the payer on first use.
func (r *Repository) TouchPayer(ctx context.Context, address string) error {
	now := time.Now().UTC()
	p := Payer{Address: NormalizeAddress(address), LastLoginAt: now}
	if p.Address == "" {
		return ErrNotFound
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_login_at": now,
			"updated_at":    gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&p).Error
}

func (r *Repository) GetPayer(ctx context.Context, address string) (*Payer, error) {
	var p Payer
	err := r.db.WithContext(ctx).Where("address = ?", NormalizeAddress(address)).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ReplaceValidatorPool stores pool as the ordered validator pool of chainID.
func (r *Repository) ReplaceValidatorPool(ctx context.Context, chainID uint64, pool validator.Pool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chain_id = ?", chainID).Delete(&ValidatorSlot{}).Error; err != nil {
			return err
		}
		if len(pool) == 0 {
			return nil
		}
		slots := make([]ValidatorSlot, len(pool))
		for i, addr := range pool {
			slots[i] = ValidatorSlot{ChainID: chainID, Position: i, Address: addressKey(addr)}
		}
		return tx.Create(&slots).Error
	})
}

// ValidatorPool loads the ordered pool of chainID. It has the shape of
// validator.PoolFor.
func (r *Repository) ValidatorPool(ctx context.Context, chainID uint64) (validator.Pool, error) {
	var slots []ValidatorSlot
	if err := r.db.WithContext(ctx).Where("chain_id = ?", chainID).Order("position asc").Find(&slots).Error; err != nil {
		return nil, apperr.Upstream("validator pool", err)
	}
	if len(slots) == 0 {
		return nil, apperr.Newf(apperr.InvalidInput, "validator pool", "no validator pool for chain %d", chainID)
	}
	pool := make(validator.Pool, len(slots))
	for i, s := range slots {
		if !common.IsHexAddress(s.Address) {
			return nil, apperr.Newf(apperr.MalformedResponse, "validator pool", "slot %d holds %q", s.Position, s.Address)
		}
		pool[i] = common.HexToAddress(s.Address)
	}
	return pool, nil
}

func (r *Repository) CreateSubscription(ctx context.Context, sub *Subscription) error {
	sub.Owner = NormalizeAddress(sub.Owner)
	sub.Account = NormalizeAddress(sub.Account)
	sub.Validator = NormalizeAddress(sub.Validator)
	err := r.db.WithContext(ctx).Create(sub).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

func (r *Repository) ListSubscriptionsByOwner(ctx context.Context, owner string, limit int) ([]Subscription, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []Subscription
	err := r.db.WithContext(ctx).
		Where("owner = ?", NormalizeAddress(owner)).
		Order("id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
