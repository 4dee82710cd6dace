package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/store"
)

// resource wires list/retrieve/create/update/delete routes for a model
// whose JSON form is also its write form. Updates decode the body over the
// stored object, so PATCH and PUT both keep omitted fields.
type resource[T any] struct {
	list   func(ctx context.Context, opts store.ListOptions) ([]T, error)
	get    func(ctx context.Context, id int64) (*T, error)
	create func(ctx context.Context, v *T) error
	update func(ctx context.Context, v *T) error
	delete func(ctx context.Context, id int64) error
	setID  func(v *T, id int64)
	// fresh returns the object a create body is decoded over; defaults to new(T).
	fresh func() *T
}

func (r resource[T]) register(g *gin.RouterGroup) {
	if r.list != nil {
		g.GET("", r.listHandler)
	}
	g.GET("/:id", r.retrieveHandler)
	g.POST("", r.createHandler)
	g.PUT("/:id", r.updateHandler)
	g.PATCH("/:id", r.updateHandler)
	g.DELETE("/:id", r.deleteHandler)
}

func (r resource[T]) listHandler(c *gin.Context) {
	items, err := r.list(c.Request.Context(), listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (r resource[T]) retrieveHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := r.get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (r resource[T]) createHandler(c *gin.Context) {
	v := new(T)
	if r.fresh != nil {
		v = r.fresh()
	}
	if !bindJSON(c, v) {
		return
	}
	r.setID(v, 0)
	if err := r.create(c.Request.Context(), v); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (r resource[T]) updateHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := r.get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !bindJSON(c, v) {
		return
	}
	r.setID(v, id)
	if err := r.update(c.Request.Context(), v); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (r resource[T]) deleteHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := r.delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
