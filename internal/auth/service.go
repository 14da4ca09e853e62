package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/config"
	"github.com/0xPexy/sentra-checkout/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spruceid/siwe-go"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// PayerRecorder notes successful sign-ins.
type PayerRecorder interface {
	TouchPayer(ctx context.Context, address string) error
}

type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

type Service struct {
	secret    []byte
	payers    PayerRecorder
	ttl       time.Duration
	nonces    *nonceStore
	domain    string
	uri       string
	statement string
	chainID   uint64
	devToken  string
	devPayer  string
}

func NewService(cfg config.AuthConfig, payers PayerRecorder) *Service {
	return &Service{
		secret:    []byte(cfg.JWTSecret),
		payers:    payers,
		ttl:       cfg.JWTTTL,
		nonces:    newNonceStore(cfg.NonceTTL),
		domain:    strings.TrimSpace(cfg.SIWEDomain),
		uri:       strings.TrimSpace(cfg.SIWEURI),
		statement: strings.TrimSpace(cfg.SIWEStatement),
		chainID:   cfg.SIWEChainID,
		devToken:  cfg.DevToken,
		devPayer:  store.NormalizeAddress(cfg.DevPayer),
	}
}

func (s *Service) IssueNonce() (string, error) {
	return s.nonces.Issue()
}

// LoginWithSIWE verifies a signed SIWE message and returns a JWT whose
// subject is the signing payer address.
func (s *Service) LoginWithSIWE(ctx context.Context, message, signature string) (string, error) {
	if strings.TrimSpace(message) == "" || strings.TrimSpace(signature) == "" {
		return "", ErrInvalidCredentials
	}

	parsed, err := siwe.ParseMessage(message)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	nonce := parsed.GetNonce()
	if !s.nonces.Has(nonce) {
		return "", ErrInvalidCredentials
	}
	var domain *string
	if s.domain != "" {
		d := s.domain
		domain = &d
	}
	if s.uri != "" {
		uri := parsed.GetURI()
		if uri.String() != s.uri {
			return "", ErrInvalidCredentials
		}
	}
	if s.statement != "" {
		if stmt := parsed.GetStatement(); stmt == nil || strings.TrimSpace(*stmt) != s.statement {
			return "", ErrInvalidCredentials
		}
	}
	if s.chainID > 0 && parsed.GetChainID() != int(s.chainID) {
		return "", ErrInvalidCredentials
	}
	if _, err := parsed.Verify(signature, domain, &nonce, nil); err != nil {
		return "", ErrInvalidCredentials
	}
	if !s.nonces.Take(nonce) {
		return "", ErrInvalidCredentials
	}
	addr := store.NormalizeAddress(parsed.GetAddress().Hex())
	if s.payers != nil {
		if err := s.payers.TouchPayer(ctx, addr); err != nil {
			return "", err
		}
	}
	return s.Issue(addr)
}

func (s *Service) Issue(address string) (string, error) {
	now := time.Now()
	claims := Claims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredentials
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Address != "" {
		return claims, nil
	}
	return nil, ErrInvalidCredentials
}

// DevPayer returns the payer the dev token stands for, if token is the dev
// token.
func (s *Service) DevPayer(token string) (string, bool) {
	if s.devToken == "" || s.devPayer == "" || token != s.devToken {
		return "", false
	}
	return s.devPayer, true
}
