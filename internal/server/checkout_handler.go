package server

import (
	"context"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/0xPexy/sentra-checkout/internal/auth"
	"github.com/0xPexy/sentra-checkout/internal/checkout"
	"github.com/0xPexy/sentra-checkout/internal/schedule"
	"github.com/0xPexy/sentra-checkout/internal/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const maxPreviewCount = 120

type CheckoutService interface {
	NeedsApproval(ctx context.Context, a checkout.Attempt) (*checkout.ApprovalStatus, error)
	ApprovalCall(ctx context.Context, a checkout.Attempt) (*checkout.ApprovalCall, error)
	Subscribe(ctx context.Context, a checkout.Attempt) (*checkout.Result, error)
}

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *store.Subscription) error
	ListSubscriptionsByOwner(ctx context.Context, owner string, limit int) ([]store.Subscription, error)
	GetSubscription(ctx context.Context, subscriberID string) (*store.Subscription, error)
	ListExecutions(ctx context.Context, subscriberID string) ([]store.InstallmentExecution, error)
}

type CheckoutRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

type AllowanceResponse struct {
	Account       string `json:"account"`
	Token         string `json:"token"`
	Validator     string `json:"validator"`
	Required      string `json:"required"`
	Granted       string `json:"granted"`
	NeedsApproval bool   `json:"needsApproval"`
	Subscribed    bool   `json:"subscribed"`
}

type ApproveResponse struct {
	To        string `json:"to"`
	Data      string `json:"data"`
	Value     string `json:"value"`
	Spender   string `json:"spender"`
	Amount    string `json:"amount"`
	Validator string `json:"validator"`
}

type SubscribeResponse struct {
	SubscriberID   string  `json:"subscriberId"`
	MerkleRoot     string  `json:"merkleRoot,omitempty"`
	Status         string  `json:"status,omitempty"`
	SubscriptionID string  `json:"subscriptionId"`
	PlanID         string  `json:"planId"`
	Account        string  `json:"account"`
	Validator      string  `json:"validator"`
	BaseNonce      string  `json:"baseNonce"`
	Deployed       bool    `json:"deployed"`
	Required       string  `json:"required"`
	ExecutionTimes []int64 `json:"executionTimes"`
}

type ScheduleResponse struct {
	Frequency      string  `json:"frequency"`
	ExecutionTimes []int64 `json:"executionTimes"`
}

type SubscriptionItem struct {
	SubscriberID   string    `json:"subscriberId"`
	ChainID        uint64    `json:"chainId"`
	SessionID      string    `json:"sessionId"`
	SubscriptionID string    `json:"subscriptionId"`
	PlanID         string    `json:"planId"`
	Account        string    `json:"account"`
	Validator      string    `json:"validator"`
	Installments   int       `json:"installments"`
	Executed       int       `json:"executed"`
	Failed         int       `json:"failed"`
	FirstExecution int64     `json:"firstExecution"`
	LastExecution  int64     `json:"lastExecution"`
	Amount         string    `json:"amount"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

type ExecutionItem struct {
	Sequence    int       `json:"sequence"`
	UserOpHash  string    `json:"userOpHash"`
	Success     bool      `json:"success"`
	TxHash      string    `json:"txHash"`
	BlockNumber uint64    `json:"blockNumber"`
	BlockTime   time.Time `json:"blockTime"`
	GasCost     string    `json:"actualGasCost"`
}

type checkoutHandler struct {
	svc        CheckoutService
	subs       SubscriptionStore
	chainID    uint64
	startDelay time.Duration
	now        func() time.Time
	logger     *log.Logger
}

func newCheckoutHandler(svc CheckoutService, subs SubscriptionStore, chainID uint64, startDelay time.Duration, logger *log.Logger) *checkoutHandler {
	return &checkoutHandler{
		svc:        svc,
		subs:       subs,
		chainID:    chainID,
		startDelay: startDelay,
		now:        time.Now,
		logger:     logger,
	}
}

func (h *checkoutHandler) attempt(c *gin.Context) (checkout.Attempt, bool) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return checkout.Attempt{}, false
	}
	payer := c.GetString(auth.PayerKey)
	if !common.IsHexAddress(payer) {
		writeError(c, http.StatusUnauthorized, "payer address missing")
		return checkout.Attempt{}, false
	}
	return checkout.Attempt{
		SessionID: c.Param("sessionId"),
		PlanID:    strings.TrimSpace(req.PlanID),
		Owner:     common.HexToAddress(payer),
	}, true
}

func (h *checkoutHandler) Allowance(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}
	st, err := h.svc.NeedsApproval(c.Request.Context(), a)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, AllowanceResponse{
		Account:       st.Account.Hex(),
		Token:         st.Token.Hex(),
		Validator:     st.Validator.Hex(),
		Required:      bigString(st.Required),
		Granted:       bigString(st.Granted),
		NeedsApproval: st.NeedsApproval,
		Subscribed:    st.Subscribed,
	})
}

func (h *checkoutHandler) Approve(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}
	call, err := h.svc.ApprovalCall(c.Request.Context(), a)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ApproveResponse{
		To:        call.To.Hex(),
		Data:      call.Data,
		Value:     call.Value,
		Spender:   call.Spender.Hex(),
		Amount:    bigString(call.Amount),
		Validator: call.Validator.Hex(),
	})
}

func (h *checkoutHandler) Subscribe(c *gin.Context) {
	a, ok := h.attempt(c)
	if !ok {
		return
	}
	res, err := h.svc.Subscribe(c.Request.Context(), a)
	if err != nil {
		writeAppError(c, err)
		return
	}
	h.record(c.Request.Context(), a, res)

	out := SubscribeResponse{
		SubscriptionID: res.SubscriptionID,
		PlanID:         res.PlanID,
		Account:        res.Account.Hex(),
		Validator:      res.Validator.Hex(),
		BaseNonce:      bigString(res.BaseNonce),
		Deployed:       res.Deployed,
		Required:       bigString(res.Required),
		ExecutionTimes: res.Schedule,
	}
	if res.Receipt != nil {
		out.SubscriberID = res.Receipt.SubscriberID
		out.MerkleRoot = res.Receipt.MerkleRoot
		out.Status = res.Receipt.Status
	}
	c.JSON(http.StatusOK, out)
}

// record persists a submitted subscription. The batch is already with the
// aggregator at this point, so a storage failure is logged and not returned.
func (h *checkoutHandler) record(ctx context.Context, a checkout.Attempt, res *checkout.Result) {
	if h.subs == nil || res.Receipt == nil {
		return
	}
	sub := &store.Subscription{
		SubscriberID:   res.Receipt.SubscriberID,
		ChainID:        h.chainID,
		SessionID:      a.SessionID,
		SubscriptionID: res.SubscriptionID,
		PlanID:         res.PlanID,
		Owner:          a.Owner.Hex(),
		Account:        res.Account.Hex(),
		Validator:      res.Validator.Hex(),
		BaseNonce:      bigString(res.BaseNonce),
		Installments:   res.Installments,
		Amount:         bigString(res.Amount),
		MerkleRoot:     res.Receipt.MerkleRoot,
		Status:         res.Receipt.Status,
	}
	if n := len(res.Schedule); n > 0 {
		sub.FirstExecution = res.Schedule[0]
		sub.LastExecution = res.Schedule[n-1]
	}
	if err := h.subs.CreateSubscription(ctx, sub); err != nil {
		h.logf("persist subscription %s: %v", sub.SubscriberID, err)
	}
}

// Schedule previews execution times without touching any collaborator.
func (h *checkoutHandler) Schedule(c *gin.Context) {
	freq, err := schedule.ParseFrequency(c.Query("frequency"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	count := 1
	if raw := c.Query("count"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil || count < 1 || count > maxPreviewCount {
			writeError(c, http.StatusBadRequest, "count must be between 1 and "+strconv.Itoa(maxPreviewCount))
			return
		}
	}
	start := h.now().Add(h.startDelay).UnixMilli()
	if raw := c.Query("start"); raw != "" {
		start, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || start < 0 {
			writeError(c, http.StatusBadRequest, "start must be unix milliseconds")
			return
		}
	}
	times, err := schedule.Generate(start, freq, count)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ScheduleResponse{Frequency: string(freq), ExecutionTimes: times})
}

func (h *checkoutHandler) ListSubscriptions(c *gin.Context) {
	if h.subs == nil {
		writeError(c, http.StatusServiceUnavailable, "subscriptions unavailable")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.subs.ListSubscriptionsByOwner(c.Request.Context(), c.GetString(auth.PayerKey), limit)
	if err != nil {
		writeAppError(c, apperr.Upstream("list subscriptions", err))
		return
	}
	items := make([]SubscriptionItem, 0, len(rows))
	for _, s := range rows {
		items = append(items, SubscriptionItem{
			SubscriberID:   s.SubscriberID,
			ChainID:        s.ChainID,
			SessionID:      s.SessionID,
			SubscriptionID: s.SubscriptionID,
			PlanID:         s.PlanID,
			Account:        s.Account,
			Validator:      s.Validator,
			Installments:   s.Installments,
			Executed:       s.Executed,
			Failed:         s.Failed,
			FirstExecution: s.FirstExecution,
			LastExecution:  s.LastExecution,
			Amount:         s.Amount,
			Status:         s.Status,
			CreatedAt:      s.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ListExecutions returns the on-chain installments of one of the payer's
// subscriptions.
func (h *checkoutHandler) ListExecutions(c *gin.Context) {
	if h.subs == nil {
		writeError(c, http.StatusServiceUnavailable, "subscriptions unavailable")
		return
	}
	ctx := c.Request.Context()
	sub, err := h.subs.GetSubscription(ctx, c.Param("subscriberId"))
	if err != nil {
		writeAppError(c, apperr.Upstream("get subscription", err))
		return
	}
	if sub == nil || !strings.EqualFold(sub.Owner, c.GetString(auth.PayerKey)) {
		writeError(c, http.StatusNotFound, "subscription not found")
		return
	}
	rows, err := h.subs.ListExecutions(ctx, sub.SubscriberID)
	if err != nil {
		writeAppError(c, apperr.Upstream("list executions", err))
		return
	}
	items := make([]ExecutionItem, 0, len(rows))
	for _, e := range rows {
		items = append(items, ExecutionItem{
			Sequence:    e.Sequence,
			UserOpHash:  e.UserOpHash,
			Success:     e.Success,
			TxHash:      e.TxHash,
			BlockNumber: e.BlockNumber,
			BlockTime:   e.BlockTime,
			GasCost:     e.ActualGasCost,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"subscriberId": sub.SubscriberID,
		"installments": sub.Installments,
		"status":       sub.Status,
		"items":        items,
	})
}

func (h *checkoutHandler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf("checkout: "+format, args...)
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
