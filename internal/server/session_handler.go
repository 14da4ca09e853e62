package server

import (
	"context"
	"log"
	"net/http"

	"github.com/0xPexy/sentra-checkout/internal/auth"
	"github.com/0xPexy/sentra-checkout/internal/session"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type SessionService interface {
	CreateSession(ctx context.Context, paymentID string) (string, error)
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	SubscriptionStatus(ctx context.Context, owner common.Address, subscriptionID string) (bool, error)
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type TokenItem struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

type PlanItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Frequency string `json:"frequency"`
	Volume    int    `json:"volume"`
}

type SessionResponse struct {
	SessionID      string     `json:"sessionId"`
	SubscriptionID string     `json:"subscriptionId"`
	Title          string     `json:"title"`
	Token          TokenItem  `json:"token"`
	Receiver       string     `json:"receiver"`
	Plans          []PlanItem `json:"plans"`
	// Subscribed is only reported to an authenticated payer.
	Subscribed *bool `json:"subscribed,omitempty"`
}

type sessionHandler struct {
	sessions SessionService
	logger   *log.Logger
}

func (h *sessionHandler) CreateFromPaymentLink(c *gin.Context) {
	id, err := h.sessions.CreateSession(c.Request.Context(), c.Param("paymentId"))
	if err != nil {
		h.logf("payment link %s: %v", c.Param("paymentId"), err)
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: id})
}

func (h *sessionHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	s, err := h.sessions.Get(ctx, c.Param("sessionId"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	token := s.Token()
	resp := SessionResponse{
		SessionID:      s.ID,
		SubscriptionID: s.Subscription.ID,
		Title:          s.Subscription.Title,
		Token: TokenItem{
			Address:  token.Address.Hex(),
			Symbol:   token.Symbol,
			Decimals: token.Decimals,
		},
		Receiver: s.Receiver().Hex(),
		Plans:    make([]PlanItem, 0, len(s.Subscription.Plans)),
	}
	for _, p := range s.Subscription.Plans {
		resp.Plans = append(resp.Plans, PlanItem{
			ID:        p.ID,
			Name:      p.Name,
			Price:     p.Price.String(),
			Frequency: p.Frequency,
			Volume:    p.Volume,
		})
	}

	if payer := c.GetString(auth.PayerKey); common.IsHexAddress(payer) {
		subscribed, err := h.sessions.SubscriptionStatus(ctx, common.HexToAddress(payer), s.Subscription.ID)
		if err != nil {
			writeAppError(c, err)
			return
		}
		resp.Subscribed = &subscribed
	}
	c.JSON(http.StatusOK, resp)
}

func (h *sessionHandler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf("session: "+format, args...)
	}
}
