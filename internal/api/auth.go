package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
)

func (h *Handler) authRoutes(g *gin.RouterGroup) {
	g.POST("/login", h.login)
	g.POST("/confirm", h.confirm)
	g.POST("/refresh", h.refresh)
}

func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Auth.IssueCode(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail("Verification code sent."))
}

func (h *Handler) confirm(c *gin.Context) {
	var req service.ConfirmRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.svc.Auth.Confirm(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	h.setRefreshCookie(c, sess.Refresh)
	c.JSON(http.StatusOK, sess)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// refresh takes the refresh token from the cookie, or from the body for
// clients that cannot keep cookies.
func (h *Handler) refresh(c *gin.Context) {
	token, _ := c.Cookie(h.cookie.Name)
	if token == "" {
		var req refreshRequest
		_ = c.ShouldBindJSON(&req)
		token = req.Refresh
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, detail("Refresh token was not provided."))
		return
	}

	sess, err := h.svc.Auth.Refresh(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	h.setRefreshCookie(c, sess.Refresh)
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, int(h.cookie.MaxAge.Seconds()), "/", "", h.cookie.Secure, true)
}
