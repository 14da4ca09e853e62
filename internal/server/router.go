package server

import (
	"log"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/auth"
	"github.com/0xPexy/sentra-checkout/internal/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Auth          *auth.Service
	Checkout      CheckoutService
	Subscriptions SubscriptionStore
	Sessions      SessionService
	Accounts      AccountLookup
	Events        *EventHub
	Logger        *log.Logger
}

func NewRouter(cfg config.Config, deps Deps) *gin.Engine {
	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	if deps.Events != nil {
		r.GET("/ws/events", deps.Events.ServeWS)
	}

	authH := &authHandler{auth: deps.Auth}
	r.GET("/auth/nonce", authH.Nonce)
	r.POST("/auth/login", authH.Login)

	co := newCheckoutHandler(deps.Checkout, deps.Subscriptions, cfg.Chain.ChainID, cfg.Checkout.StartDelay, deps.Logger)
	api := r.Group("/api/v1")
	api.GET("/schedule", co.Schedule)
	if deps.Sessions != nil {
		sess := &sessionHandler{sessions: deps.Sessions, logger: deps.Logger}
		api.POST("/payment-links/:paymentId/session", sess.CreateFromPaymentLink)
		api.GET("/checkout/:sessionId", auth.OptionalJWTMiddleware(deps.Auth), sess.Get)
	}

	guard := auth.JWTMiddleware(deps.Auth)
	pay := api.Group("", guard)
	{
		pay.GET("/me", authH.Me)
		pay.POST("/checkout/:sessionId/allowance", co.Allowance)
		pay.POST("/checkout/:sessionId/approve", co.Approve)
		pay.POST("/checkout/:sessionId/subscribe", co.Subscribe)
		pay.GET("/subscriptions", co.ListSubscriptions)
		pay.GET("/subscriptions/:subscriberId/executions", co.ListExecutions)
	}
	if deps.Accounts != nil {
		acct := &accountHandler{lookup: deps.Accounts}
		pay.GET("/account", acct.Get)
		pay.POST("/account/deploy", acct.Deploy)
	}

	return r
}
