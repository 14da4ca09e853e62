// Package checkout drives a subscription attempt from session lookup to
// aggregate submission.
package checkout

import (
	"context"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/batch"
	"github.com/0xPexy/sentra-checkout/internal/chain"
	"github.com/0xPexy/sentra-checkout/internal/fees"
	"github.com/0xPexy/sentra-checkout/internal/schedule"
	"github.com/0xPexy/sentra-checkout/internal/session"
	"github.com/0xPexy/sentra-checkout/internal/submit"
	"github.com/0xPexy/sentra-checkout/internal/validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	DefaultStartDelay      = 3 * time.Minute
	DefaultMaxInstallments = 120
)

type Sessions interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	SubscriptionStatus(ctx context.Context, owner common.Address, subscriptionID string) (bool, error)
	RecordNetwork(ctx context.Context, sessionID string, chainID uint64) error
}

// Account is a payer's smart account.
type Account interface {
	batch.AccountService
	Address() common.Address
}

type AccountResolver func(ctx context.Context, owner common.Address) (Account, error)

type Allocator interface {
	Pool(ctx context.Context, chainID uint64) (validator.Pool, error)
	Allocate(ctx context.Context, chainID uint64, smartAccount common.Address) (common.Address, error)
}

type Quoter interface {
	Quote(ctx context.Context, amount *big.Int, validator common.Address) (fees.Quote, error)
}

type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

type Submitter interface {
	Submit(ctx context.Context, b *batch.SignedBatch, meta submit.Metadata) (*submit.Receipt, error)
}

type Config struct {
	ChainID    uint64
	StartDelay time.Duration
	// MaxInstallments bounds the plan volume a session may ask for.
	MaxInstallments int
	Batch           batch.Config
}

type Deps struct {
	Sessions   Sessions
	Accounts   AccountResolver
	Allocator  Allocator
	Quoter     Quoter
	Allowances AllowanceReader
	Encoder    batch.CallDataEncoder
	Signer     batch.Signer
	Submitter  Submitter
	Events     EventSink
}

type Service struct {
	cfg    Config
	deps   Deps
	now    func() time.Time
	logger *log.Logger
}

func NewService(cfg Config, deps Deps, logger *log.Logger) *Service {
	if cfg.StartDelay <= 0 {
		cfg.StartDelay = DefaultStartDelay
	}
	if cfg.MaxInstallments <= 0 {
		cfg.MaxInstallments = DefaultMaxInstallments
	}
	if deps.Events == nil {
		deps.Events = discardSink{}
	}
	return &Service{cfg: cfg, deps: deps, now: time.Now, logger: logger}
}

// Attempt identifies one payer subscribing to one plan of a checkout session.
type Attempt struct {
	SessionID string
	PlanID    string
	Owner     common.Address
}

func (a Attempt) validate() error {
	switch {
	case strings.TrimSpace(a.SessionID) == "":
		return apperr.New(apperr.InvalidInput, "checkout", "session id required")
	case strings.TrimSpace(a.PlanID) == "":
		return apperr.New(apperr.InvalidInput, "checkout", "plan id required")
	case a.Owner == (common.Address{}):
		return apperr.New(apperr.InvalidInput, "checkout", "owner address required")
	}
	return nil
}

// prepared is everything an attempt resolves before touching validators.
type prepared struct {
	session   *session.Session
	plan      session.Plan
	frequency schedule.Frequency
	unit      *big.Int
	token     common.Address
	account   Account
}

func (s *Service) prepare(ctx context.Context, a Attempt) (*prepared, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	sess, err := s.deps.Sessions.Get(ctx, a.SessionID)
	if err != nil {
		return nil, apperr.Upstream("checkout session", err)
	}
	plan, err := sess.Plan(a.PlanID)
	if err != nil {
		return nil, err
	}
	freq, err := schedule.ParseFrequency(plan.Frequency)
	if err != nil {
		return nil, err
	}
	if plan.Volume < 1 {
		return nil, apperr.Newf(apperr.InvalidInput, "checkout", "plan %s has no installments", plan.ID)
	}
	if plan.Volume > s.cfg.MaxInstallments {
		return nil, apperr.Newf(apperr.InvalidInput, "checkout", "plan %s asks for %d installments, limit is %d", plan.ID, plan.Volume, s.cfg.MaxInstallments)
	}
	token := sess.Token()
	unit, err := ToBaseUnits(plan.Price, token.Decimals)
	if err != nil {
		return nil, err
	}
	account, err := s.deps.Accounts(ctx, a.Owner)
	if err != nil {
		if apperr.IsTimeout(err) {
			return nil, apperr.Upstream("resolve account", err)
		}
		return nil, apperr.Wrap(apperr.AccountUnavailable, "resolve account", err)
	}
	return &prepared{
		session:   sess,
		plan:      plan,
		frequency: freq,
		unit:      unit,
		token:     token.Address,
		account:   account,
	}, nil
}

func (s *Service) requiredAllowance(ctx context.Context, p *prepared, v common.Address) (fees.Quote, *big.Int, error) {
	q, err := s.deps.Quoter.Quote(ctx, p.unit, v)
	if err != nil {
		return fees.Quote{}, nil, err
	}
	required, err := fees.RequiredAllowance(p.unit, q, p.plan.Volume)
	if err != nil {
		return fees.Quote{}, nil, err
	}
	return q, required, nil
}

type ApprovalStatus struct {
	Account       common.Address `json:"account"`
	Token         common.Address `json:"token"`
	Validator     common.Address `json:"validator"`
	Required      *big.Int       `json:"required"`
	Granted       *big.Int       `json:"granted"`
	NeedsApproval bool           `json:"needsApproval"`
	Subscribed    bool           `json:"subscribed"`
}

// NeedsApproval sizes the allowance with the pool's default validator and
// compares it with what the owner has granted the smart account.
func (s *Service) NeedsApproval(ctx context.Context, a Attempt) (*ApprovalStatus, error) {
	p, err := s.prepare(ctx, a)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.RecordNetwork(ctx, a.SessionID, s.cfg.ChainID); err != nil {
		s.logf("record network failed: session=%s err=%v", a.SessionID, err)
	}
	if _, err := schedule.Generate(s.now().UnixMilli(), p.frequency, p.plan.Volume); err != nil {
		return nil, err
	}
	pool, err := s.deps.Allocator.Pool(ctx, s.cfg.ChainID)
	if err != nil {
		return nil, err
	}
	v, ok := pool.Default()
	if !ok {
		return nil, apperr.New(apperr.InvalidInput, "validator pool", "empty validator pool")
	}
	_, required, err := s.requiredAllowance(ctx, p, v)
	if err != nil {
		return nil, err
	}
	granted, err := s.deps.Allowances.Allowance(ctx, p.token, a.Owner, p.account.Address())
	if err != nil {
		return nil, apperr.Upstream("read allowance", err)
	}
	subscribed, err := s.deps.Sessions.SubscriptionStatus(ctx, a.Owner, p.session.Subscription.ID)
	if err != nil {
		return nil, apperr.Upstream("subscription status", err)
	}
	return &ApprovalStatus{
		Account:       p.account.Address(),
		Token:         p.token,
		Validator:     v,
		Required:      required,
		Granted:       granted,
		NeedsApproval: granted.Cmp(required) < 0,
		Subscribed:    subscribed,
	}, nil
}

// ApprovalCall is an unsigned ERC-20 approve transaction for the owner's
// wallet to send.
type ApprovalCall struct {
	To        common.Address `json:"to"`
	Data      string         `json:"data"`
	Value     string         `json:"value"`
	Spender   common.Address `json:"spender"`
	Amount    *big.Int       `json:"amount"`
	Validator common.Address `json:"validator"`
}

// ApprovalCall quotes with a freshly allocated validator so the approved
// amount matches what Subscribe will require.
func (s *Service) ApprovalCall(ctx context.Context, a Attempt) (*ApprovalCall, error) {
	p, err := s.prepare(ctx, a)
	if err != nil {
		return nil, err
	}
	v, err := s.deps.Allocator.Allocate(ctx, s.cfg.ChainID, p.account.Address())
	if err != nil {
		return nil, err
	}
	_, required, err := s.requiredAllowance(ctx, p, v)
	if err != nil {
		return nil, err
	}
	data, err := chain.ApproveCallData(p.account.Address(), required)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "approve calldata", err)
	}
	return &ApprovalCall{
		To:        p.token,
		Data:      hexutil.Encode(data),
		Value:     "0x0",
		Spender:   p.account.Address(),
		Amount:    required,
		Validator: v,
	}, nil
}

type Result struct {
	Receipt        *submit.Receipt `json:"receipt"`
	SubscriptionID string          `json:"subscriptionId"`
	PlanID         string          `json:"planId"`
	Amount         *big.Int        `json:"amount"`
	Account        common.Address  `json:"account"`
	Validator      common.Address  `json:"validator"`
	BaseNonce      *big.Int        `json:"baseNonce"`
	Deployed       bool            `json:"deployed"`
	Schedule       []int64         `json:"schedule"`
	Required       *big.Int        `json:"required"`
	Installments   int             `json:"installments"`
}

// Subscribe allocates a validator, verifies the allowance, builds the signed
// installment batch and submits it. Nothing is submitted unless the whole
// batch was built.
func (s *Service) Subscribe(ctx context.Context, a Attempt) (*Result, error) {
	ev := Event{SessionID: a.SessionID, PlanID: a.PlanID, Owner: a.Owner.Hex()}
	res, err := s.subscribe(ctx, a, &ev)
	if err != nil {
		ev.Type = EventFailed
		ev.Kind = apperr.KindOf(err)
		ev.Error = err.Error()
		ev.Retryable = apperr.Retryable(err)
		s.publish(ev)
		s.logf("subscribe failed: session=%s owner=%s err=%v", a.SessionID, a.Owner.Hex(), err)
		return nil, err
	}
	return res, nil
}

func (s *Service) subscribe(ctx context.Context, a Attempt, ev *Event) (*Result, error) {
	p, err := s.prepare(ctx, a)
	if err != nil {
		return nil, err
	}
	ev.Account = p.account.Address().Hex()
	subscribed, err := s.deps.Sessions.SubscriptionStatus(ctx, a.Owner, p.session.Subscription.ID)
	if err != nil {
		return nil, apperr.Upstream("subscription status", err)
	}
	if subscribed {
		return nil, apperr.Newf(apperr.InvalidInput, "checkout", "owner already subscribed to %s", p.session.Subscription.ID)
	}

	v, err := s.deps.Allocator.Allocate(ctx, s.cfg.ChainID, p.account.Address())
	if err != nil {
		return nil, err
	}
	ev.Validator = v.Hex()
	q, required, err := s.requiredAllowance(ctx, p, v)
	if err != nil {
		return nil, err
	}
	granted, err := s.deps.Allowances.Allowance(ctx, p.token, a.Owner, p.account.Address())
	if err != nil {
		return nil, apperr.Upstream("read allowance", err)
	}
	if err := fees.CheckAllowance(granted, required); err != nil {
		return nil, err
	}

	start := s.now().Add(s.cfg.StartDelay).UnixMilli()
	times, err := schedule.Generate(start, p.frequency, p.plan.Volume)
	if err != nil {
		return nil, err
	}

	builder := batch.NewBuilder(s.cfg.Batch, p.account, s.deps.Encoder, s.deps.Signer, s.logger)
	signed, err := builder.Build(ctx, batch.Request{
		Account: p.account.Address(),
		Transfer: batch.Transfer{
			From:      a.Owner,
			To:        p.session.Receiver(),
			Token:     p.token,
			Amount:    p.unit,
			Quote:     q,
			Validator: v,
		},
		Schedule: times,
	})
	if err != nil {
		return nil, err
	}
	ev.Installments = len(signed.Operations)
	built := *ev
	built.Type = EventBuilt
	s.publish(built)

	receipt, err := s.deps.Submitter.Submit(ctx, signed, submit.Metadata{
		Owner:          a.Owner,
		PlanID:         p.plan.ID,
		SubscriptionID: p.session.Subscription.ID,
		SessionID:      a.SessionID,
	})
	if err != nil {
		return nil, err
	}
	done := *ev
	done.Type = EventSubmitted
	done.SubscriberID = receipt.SubscriberID
	s.publish(done)

	return &Result{
		Receipt:        receipt,
		SubscriptionID: p.session.Subscription.ID,
		PlanID:         p.plan.ID,
		Amount:         p.unit,
		Account:        signed.Sender,
		Validator:      signed.Validator,
		BaseNonce:      signed.BaseNonce,
		Deployed:       signed.Deployed,
		Schedule:       signed.Schedule,
		Required:       required,
		Installments:   len(signed.Operations),
	}, nil
}

func (s *Service) publish(ev Event) {
	ev.At = s.now().UTC()
	s.deps.Events.Publish(ev)
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
