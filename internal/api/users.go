package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
)

func (h *Handler) userRoutes(v1 *gin.RouterGroup) {
	v1.GET("/me", requireAuth(), h.me)

	users := v1.Group("/users", requireStaff())
	users.GET("", h.listUsers)
	users.GET("/:id", h.getUser)
	users.POST("", h.createUser)
	users.PUT("/:id", h.updateUser)
	users.PATCH("/:id", h.updateUser)
	users.DELETE("/:id", h.deleteUser)

	h.recipientRoutes(v1.Group("/recipients", requireStaff()), true)
	h.recipientRoutes(v1.Group("/me/recipients", requireAuth()), false)
}

func (h *Handler) me(c *gin.Context) {
	p, _ := principal(c)
	u, err := h.svc.Users.Me(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.svc.Users.ListUsers(c.Request.Context(), listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) getUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	u, err := h.svc.Users.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) createUser(c *gin.Context) {
	var in service.UserInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := h.svc.Users.CreateUser(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) updateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	existing, err := h.svc.Users.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	active := existing.IsActive
	in := &service.UserInput{
		Email:           existing.Email,
		Username:        existing.Username,
		FirstName:       existing.FirstName,
		LastName:        existing.LastName,
		Role:            existing.Role,
		IsActive:        &active,
		IsStaff:         existing.IsStaff,
		IsEmailVerified: existing.IsEmailVerified,
	}
	if !bindJSON(c, in) {
		return
	}
	u, err := h.svc.Users.UpdateUser(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Users.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// recipientRoutes serves the staff listing (all users) and the caller's own
// address book from the same handlers.
func (h *Handler) recipientRoutes(g *gin.RouterGroup, staff bool) {
	g.GET("", func(c *gin.Context) {
		p, _ := principal(c)
		recipients, err := h.svc.Users.ListRecipients(c.Request.Context(), p, staff, listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, recipients)
	})

	g.GET("/:id", func(c *gin.Context) {
		p, _ := principal(c)
		id, ok := pathID(c)
		if !ok {
			return
		}
		r, err := h.svc.Users.GetRecipient(c.Request.Context(), p, staff, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	})

	g.POST("", func(c *gin.Context) {
		p, _ := principal(c)
		var in service.RecipientInput
		if !bindJSON(c, &in) {
			return
		}
		r, err := h.svc.Users.CreateRecipient(c.Request.Context(), p, staff, &in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, r)
	})

	update := func(c *gin.Context) {
		p, _ := principal(c)
		id, ok := pathID(c)
		if !ok {
			return
		}
		existing, err := h.svc.Users.GetRecipient(c.Request.Context(), p, staff, id)
		if err != nil {
			respondError(c, err)
			return
		}
		in := &service.RecipientInput{
			UserID:       existing.UserID,
			FullName:     existing.FullName,
			Phone:        existing.Phone,
			Country:      existing.Country,
			City:         existing.City,
			PostalCode:   existing.PostalCode,
			AddressLine1: existing.AddressLine1,
			AddressLine2: existing.AddressLine2,
			Notes:        existing.Notes,
		}
		if !bindJSON(c, in) {
			return
		}
		r, err := h.svc.Users.UpdateRecipient(c.Request.Context(), p, staff, id, in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
	g.PUT("/:id", update)
	g.PATCH("/:id", update)

	g.DELETE("/:id", func(c *gin.Context) {
		p, _ := principal(c)
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := h.svc.Users.DeleteRecipient(c.Request.Context(), p, staff, id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
