// Package session opens and reads checkout sessions and subscription state
// on the merchant checkout API.
package session

import (
	"strings"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals int32          `json:"decimals"`
}

type Receiver struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name,omitempty"`
}

type Plan struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Frequency string          `json:"frequency"`
	Volume    int             `json:"volume"`
}

type Subscription struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Plans     []Plan     `json:"plans"`
	Tokens    []Token    `json:"tokens"`
	Receivers []Receiver `json:"receivers"`
}

type Session struct {
	ID           string       `json:"id"`
	Subscription Subscription `json:"subscription"`
}

// Plan returns the plan with the given id.
func (s *Session) Plan(id string) (Plan, error) {
	for _, p := range s.Subscription.Plans {
		if p.ID == id {
			return p, nil
		}
	}
	return Plan{}, apperr.Newf(apperr.InvalidInput, "select plan", "plan %q not offered by session %s", id, s.ID)
}

// Token is the first accepted token; checkout charges in it.
func (s *Session) Token() Token { return s.Subscription.Tokens[0] }

// Receiver is the first configured merchant receiver.
func (s *Session) Receiver() common.Address { return s.Subscription.Receivers[0].Address }

func (s *Session) validate() error {
	const step = "checkout session"
	sub := s.Subscription
	switch {
	case strings.TrimSpace(sub.ID) == "":
		return apperr.New(apperr.MalformedResponse, step, "missing subscription id")
	case len(sub.Tokens) == 0 || sub.Tokens[0].Address == (common.Address{}):
		return apperr.New(apperr.MalformedResponse, step, "missing token")
	case sub.Tokens[0].Decimals < 0 || sub.Tokens[0].Decimals > 36:
		return apperr.Newf(apperr.MalformedResponse, step, "token decimals %d out of range", sub.Tokens[0].Decimals)
	case len(sub.Receivers) == 0 || sub.Receivers[0].Address == (common.Address{}):
		return apperr.New(apperr.MalformedResponse, step, "missing receiver")
	case len(sub.Plans) == 0:
		return apperr.New(apperr.MalformedResponse, step, "no plans")
	}
	for i, p := range sub.Plans {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Frequency) == "" {
			return apperr.Newf(apperr.MalformedResponse, step, "plan %d incomplete", i)
		}
	}
	return nil
}
