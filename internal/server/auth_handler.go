package server

import (
	"net/http"

	"github.com/0xPexy/sentra-checkout/internal/auth"
	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type NonceResponse struct {
	Nonce string `json:"nonce"`
}

type MeResponse struct {
	Address string `json:"address"`
}

type authHandler struct {
	auth *auth.Service
}

func (h *authHandler) Nonce(c *gin.Context) {
	nonce, err := h.auth.IssueNonce()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "failed to issue nonce")
		return
	}
	c.JSON(http.StatusOK, NonceResponse{Nonce: nonce})
}

func (h *authHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	token, err := h.auth.LoginWithSIWE(c.Request.Context(), req.Message, req.Signature)
	if err != nil {
		writeError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (h *authHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, MeResponse{Address: c.GetString(auth.PayerKey)})
}
