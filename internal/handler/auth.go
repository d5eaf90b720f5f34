package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xboard/internal/client/xboard"
	"xboard/internal/credstore"
)

// AuthHandler proxies credential exchange to the analytics backend and keeps
// the returned session token in local storage. OnLogin/OnLogout are wired by
// main to start and stop the dashboard session.
type AuthHandler struct {
	Client   *xboard.Client
	Tokens   credstore.Store
	Logger   *zap.Logger
	OnLogin  func()
	OnLogout func()
}

func (h *AuthHandler) Register(r *gin.Engine) {
	group := r.Group("/api/auth")
	group.POST("/login", h.login)
	group.POST("/register", h.register)
	group.POST("/logout", h.logout)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "email and password are required")
		return
	}
	token, err := h.Client.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		h.Logger.Info("login rejected", zap.Error(err))
		Error(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := h.Tokens.SetToken(token); err != nil {
		h.Logger.Error("token persist failed", zap.Error(err))
		Error(c, http.StatusInternalServerError, "failed to store session")
		return
	}
	if h.OnLogin != nil {
		h.OnLogin()
	}
	Ok(c, gin.H{"email": strings.TrimSpace(req.Email)})
}

type registerRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	ShopDomain  string `json:"shop_domain" binding:"required"`
	AccessToken string `json:"access_token" binding:"required"`
}

func (h *AuthHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "email, password, shop_domain and access_token are required")
		return
	}
	token, err := h.Client.Register(c.Request.Context(), xboard.RegisterRequest{
		Email:       strings.TrimSpace(req.Email),
		Password:    req.Password,
		ShopDomain:  strings.TrimSpace(req.ShopDomain),
		AccessToken: strings.TrimSpace(req.AccessToken),
	})
	if err != nil {
		h.Logger.Info("registration rejected", zap.Error(err))
		Error(c, http.StatusBadRequest, "registration failed")
		return
	}
	if err := h.Tokens.SetToken(token); err != nil {
		h.Logger.Error("token persist failed", zap.Error(err))
		Error(c, http.StatusInternalServerError, "failed to store session")
		return
	}
	if h.OnLogin != nil {
		h.OnLogin()
	}
	Ok(c, gin.H{"email": strings.TrimSpace(req.Email), "shop_domain": strings.TrimSpace(req.ShopDomain)})
}

func (h *AuthHandler) logout(c *gin.Context) {
	if h.OnLogout != nil {
		h.OnLogout()
	}
	Ok(c, nil)
}
