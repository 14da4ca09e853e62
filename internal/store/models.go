package store

import "time"

// Payer is an address that has signed in with SIWE.
type Payer struct {
	ID          uint   `gorm:"primaryKey"`
	Address     string `gorm:"size:66;uniqueIndex"`
	LastLoginAt time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// ValidatorSlot is one entry of a chain's ordered validator pool. Position 0
// is the pool default.
type ValidatorSlot struct {
	ID        uint      `gorm:"primaryKey"`
	ChainID   uint64    `gorm:"uniqueIndex:idx_validator_slot;not null"`
	Position  int       `gorm:"uniqueIndex:idx_validator_slot;not null"`
	Address   string    `gorm:"size:66;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Subscription records a batch accepted by the aggregator.
type Subscription struct {
	ID             uint   `gorm:"primaryKey"`
	SubscriberID   string `gorm:"size:64;uniqueIndex"`
	ChainID        uint64 `gorm:"index"`
	SessionID      string `gorm:"size:128;index"`
	SubscriptionID string `gorm:"size:128"`
	PlanID         string `gorm:"size:128"`
	Owner          string `gorm:"size:66;index"`
	Account        string `gorm:"size:66"`
	Validator      string `gorm:"size:66"`
	BaseNonce      string `gorm:"size:78"`
	Installments   int
	Executed       int
	Failed         int
	FirstExecution int64
	LastExecution  int64
	Amount         string    `gorm:"size:78"`
	MerkleRoot     string    `gorm:"size:66"`
	Status         string    `gorm:"size:64"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

const (
	SubscriptionActive    = "active"
	SubscriptionCompleted = "completed"
)

// InstallmentExecution is one installment operation seen on chain.
// Sequence is the operation's offset from the subscription's base nonce.
type InstallmentExecution struct {
	ID            uint   `gorm:"primaryKey"`
	SubscriberID  string `gorm:"size:64;index"`
	Sequence      int
	ChainID       uint64 `gorm:"index"`
	UserOpHash    string `gorm:"size:66;uniqueIndex"`
	Sender        string `gorm:"size:66;index"`
	Nonce         string `gorm:"size:78"`
	Success       bool
	ActualGasCost string `gorm:"size:78"`
	ActualGasUsed string `gorm:"size:78"`
	TxHash        string `gorm:"size:66"`
	BlockNumber   uint64
	LogIndex      uint
	BlockTime     time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// LogCursor is the last EntryPoint log the installment tracker processed.
type LogCursor struct {
	ID           uint   `gorm:"primaryKey"`
	ChainID      uint64 `gorm:"uniqueIndex:idx_log_cursor"`
	Address      string `gorm:"size:66;uniqueIndex:idx_log_cursor"`
	LastBlock    uint64
	LastTxHash   string `gorm:"size:66"`
	LastLogIndex uint
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
