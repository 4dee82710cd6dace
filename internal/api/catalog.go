package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/store"
)

func (h *Handler) catalogRoutes(v1 *gin.RouterGroup) {
	cat := h.svc.Catalog

	categories := v1.Group("/categories", staffOrReadOnly())
	categories.GET("", h.listCategories)
	resource[models.Category]{
		get:    cat.GetCategory,
		create: cat.CreateCategory,
		update: cat.UpdateCategory,
		delete: cat.DeleteCategory,
		setID:  func(v *models.Category, id int64) { v.ID = id; v.Children = nil },
		fresh:  func() *models.Category { return &models.Category{IsActive: true} },
	}.register(categories)

	resource[models.Brand]{
		list:   cat.ListBrands,
		get:    cat.GetBrand,
		create: cat.CreateBrand,
		update: cat.UpdateBrand,
		delete: cat.DeleteBrand,
		setID:  func(v *models.Brand, id int64) { v.ID = id },
	}.register(v1.Group("/brands", staffOrReadOnly()))

	resource[models.Size]{
		list:   cat.ListSizes,
		get:    cat.GetSize,
		create: cat.CreateSize,
		update: cat.UpdateSize,
		delete: cat.DeleteSize,
		setID:  func(v *models.Size, id int64) { v.ID = id },
		fresh:  func() *models.Size { return &models.Size{SizeType: models.SizeTypeUniversal} },
	}.register(v1.Group("/sizes", staffOrReadOnly()))

	goods := v1.Group("/goods", staffOrReadOnly())
	goods.GET("", h.listProducts)
	goods.GET("/:id", h.getProduct)
	goods.POST("", h.createProduct)
	goods.PUT("/:id", h.updateProduct)
	goods.PATCH("/:id", h.updateProduct)
	goods.DELETE("/:id", h.deleteProduct)

	resource[models.PaymentMethod]{
		list:   cat.ListPaymentMethods,
		get:    cat.GetPaymentMethod,
		create: cat.CreatePaymentMethod,
		update: cat.UpdatePaymentMethod,
		delete: cat.DeletePaymentMethod,
		setID:  func(v *models.PaymentMethod, id int64) { v.ID = id },
		fresh:  func() *models.PaymentMethod { return &models.PaymentMethod{IsActive: true, Provider: "yookassa"} },
	}.register(v1.Group("/payments/methods", staffOrReadOnly()))

	resource[models.DeliveryMethod]{
		list:   cat.ListDeliveryMethods,
		get:    cat.GetDeliveryMethod,
		create: cat.CreateDeliveryMethod,
		update: cat.UpdateDeliveryMethod,
		delete: cat.DeleteDeliveryMethod,
		setID:  func(v *models.DeliveryMethod, id int64) { v.ID = id },
		fresh:  func() *models.DeliveryMethod { return &models.DeliveryMethod{IsActive: true, MinDays: 1, MaxDays: 5} },
	}.register(v1.Group("/deliveries/methods", staffOrReadOnly()))

	transactions := v1.Group("/transactions", requireStaff())
	transactions.GET("", h.listTransactions)
	transactions.GET("/:id", h.getTransaction)
}

func (h *Handler) listCategories(c *gin.Context) {
	tree := c.Query("tree") == "true"
	categories, err := h.svc.Catalog.ListCategories(c.Request.Context(), listOptions(c), tree)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) listProducts(c *gin.Context) {
	categoryID, ok := queryInt64(c, "category")
	if !ok {
		return
	}
	brandID, ok := queryInt64(c, "brand")
	if !ok {
		return
	}
	published, ok := queryBool(c, "is_published")
	if !ok {
		return
	}

	products, err := h.svc.Catalog.ListProducts(c.Request.Context(), store.ProductFilter{
		CategoryID:  categoryID,
		BrandID:     brandID,
		Status:      c.Query("status"),
		IsPublished: published,
		ListOptions: listOptions(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.svc.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.svc.Catalog.CreateProduct(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// updateProduct decodes the body over the stored product, so omitted fields
// (and omitted images/sizes_info lists) are kept.
func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	existing, err := h.svc.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	in := productInputFrom(existing)
	if !bindJSON(c, in) {
		return
	}
	p, err := h.svc.Catalog.UpdateProduct(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func productInputFrom(p *models.Product) *service.ProductInput {
	return &service.ProductInput{
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		CategoryID:  p.CategoryID,
		BrandID:     p.BrandID,
		SKU:         p.SKU,
		Price:       p.Price,
		Currency:    p.Currency,
		Status:      p.Status,
		IsPublished: p.IsPublished,
		Attributes:  p.Attributes,
		Meta:        p.Meta,
		Stock:       p.Stock,
		WeightGrams: p.WeightGrams,
	}
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listTransactions(c *gin.Context) {
	txs, err := h.svc.Catalog.ListTransactions(c.Request.Context(), listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

func (h *Handler) getTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	tx, err := h.svc.Catalog.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}
