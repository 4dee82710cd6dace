package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
)

func (h *Handler) basketRoutes(g *gin.RouterGroup) {
	g.GET("", h.listBasket)
	g.POST("", h.addBasketItem)
	g.GET("/:id", h.getBasketItem)
	g.PATCH("/:id", h.updateBasketItem)
	g.PUT("/:id", h.updateBasketItem)
	g.DELETE("/:id", h.deleteBasketItem)
}

func (h *Handler) listBasket(c *gin.Context) {
	p, _ := principal(c)
	items, err := h.svc.Basket.List(c.Request.Context(), p.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) addBasketItem(c *gin.Context) {
	p, _ := principal(c)
	var req service.AddBasketItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.svc.Basket.Add(c.Request.Context(), p.UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) getBasketItem(c *gin.Context) {
	p, _ := principal(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	item, err := h.svc.Basket.Get(c.Request.Context(), p.UserID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) updateBasketItem(c *gin.Context) {
	p, _ := principal(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateBasketItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.svc.Basket.Update(c.Request.Context(), p.UserID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) deleteBasketItem(c *gin.Context) {
	p, _ := principal(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Basket.Delete(c.Request.Context(), p.UserID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) checkoutRoutes(g *gin.RouterGroup) {
	g.GET("", h.listCheckouts)
	g.POST("", h.createCheckout)
	g.GET("/:id", h.getCheckout)
	g.POST("/:id/cancel", h.cancelCheckout)
}

func (h *Handler) listCheckouts(c *gin.Context) {
	p, _ := principal(c)
	checkouts, err := h.svc.Checkouts.ListCheckouts(c.Request.Context(), p, c.Query("all") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkouts)
}

// createCheckout answers 201 for a new checkout and 200 when the
// Idempotency-Key matched an earlier one.
func (h *Handler) createCheckout(c *gin.Context) {
	p, _ := principal(c)
	var req service.CreateCheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	checkout, created, err := h.svc.Checkouts.CreateCheckout(c.Request.Context(), p.UserID, &req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, checkout)
}

func (h *Handler) getCheckout(c *gin.Context) {
	p, _ := principal(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	checkout, err := h.svc.Checkouts.GetCheckout(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkout)
}

func (h *Handler) cancelCheckout(c *gin.Context) {
	p, _ := principal(c)
	id, ok := pathID(c)
	if !ok {
		return
	}
	checkout, err := h.svc.Checkouts.CancelCheckout(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkout)
}

// paymentNotification acknowledges gateway webhooks. A gateway outage while
// re-reading the payment answers 502 so the provider redelivers.
func (h *Handler) paymentNotification(c *gin.Context) {
	var n service.Notification
	if !bindJSON(c, &n) {
		return
	}
	if err := h.svc.Reconciler.HandleNotification(c.Request.Context(), &n); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
