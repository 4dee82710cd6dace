package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/models"
	"storefront/internal/service"
)

func (h *Handler) contentRoutes(v1 *gin.RouterGroup) {
	content := h.svc.Content

	news := v1.Group("/news", requireStaff())
	news.GET("", h.listNews(false))
	news.GET("/:id", h.getNews(false))
	news.POST("", h.createNews)
	news.PUT("/:id", h.updateNews)
	news.PATCH("/:id", h.updateNews)
	news.DELETE("/:id", h.deleteNews)

	v1.GET("/public/news", h.listNews(true))
	v1.GET("/public/news/:id", h.getNews(true))

	resource[models.PageTemplate]{
		list:   content.ListPageTemplates,
		get:    content.GetPageTemplate,
		create: content.CreatePageTemplate,
		update: content.UpdatePageTemplate,
		delete: content.DeletePageTemplate,
		setID:  func(v *models.PageTemplate, id int64) { v.ID = id },
		fresh:  func() *models.PageTemplate { return &models.PageTemplate{IsActive: true} },
	}.register(v1.Group("/pages/templates", requireStaff()))

	v1.GET("/pages/published", h.listPublishedPages)
	v1.GET("/pages/published/:slug", h.getPublishedPage)

	pages := v1.Group("/pages", requireStaff())
	pages.GET("", h.listPages)
	pages.GET("/:id", h.getPage)
	pages.POST("", h.createPage)
	pages.PUT("/:id", h.updatePage)
	pages.PATCH("/:id", h.updatePage)
	pages.DELETE("/:id", h.deletePage)
}

func (h *Handler) listNews(publishedOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		articles, err := h.svc.Content.ListNews(c.Request.Context(), publishedOnly, listOptions(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if publishedOnly {
			for _, a := range articles {
				a.Status = ""
			}
		}
		c.JSON(http.StatusOK, articles)
	}
}

func (h *Handler) getNews(publishedOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		a, err := h.svc.Content.GetNews(c.Request.Context(), id, publishedOnly)
		if err != nil {
			respondError(c, err)
			return
		}
		if publishedOnly {
			a.Status = ""
		}
		c.JSON(http.StatusOK, a)
	}
}

func (h *Handler) createNews(c *gin.Context) {
	var in service.NewsInput
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.svc.Content.CreateNews(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) updateNews(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	existing, err := h.svc.Content.GetNews(c.Request.Context(), id, false)
	if err != nil {
		respondError(c, err)
		return
	}

	in := &service.NewsInput{
		Title:          existing.Title,
		Slug:           existing.Slug,
		Summary:        existing.Summary,
		Body:           existing.Body,
		CoverImage:     existing.CoverImage,
		AuthorName:     existing.AuthorName,
		Status:         existing.Status,
		PublishedAt:    existing.PublishedAt,
		SEOTitle:       existing.SEOTitle,
		SEODescription: existing.SEODescription,
		Tags:           existing.Tags,
		Featured:       existing.Featured,
	}
	if !bindJSON(c, in) {
		return
	}
	a, err := h.svc.Content.UpdateNews(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) deleteNews(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Content.DeleteNews(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listPages(c *gin.Context) {
	pages, err := h.svc.Content.ListPages(c.Request.Context(), false, listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pages)
}

func (h *Handler) listPublishedPages(c *gin.Context) {
	pages, err := h.svc.Content.ListPages(c.Request.Context(), true, listOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pages)
}

func (h *Handler) getPublishedPage(c *gin.Context) {
	p, err := h.svc.Content.GetPublishedPage(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) getPage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.svc.Content.GetPage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createPage(c *gin.Context) {
	var in service.PageInput
	if !bindJSON(c, &in) {
		return
	}
	author, _ := principal(c)
	p, err := h.svc.Content.CreatePage(c.Request.Context(), &in, author.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updatePage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	existing, err := h.svc.Content.GetPage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	in := &service.PageInput{
		Title:          existing.Title,
		Slug:           existing.Slug,
		Locale:         existing.Locale,
		TemplateID:     existing.TemplateID,
		Status:         existing.Status,
		Blocks:         existing.Blocks,
		SEOTitle:       existing.SEOTitle,
		SEODescription: existing.SEODescription,
		SEOKeywords:    existing.SEOKeywords,
		PublishAt:      existing.PublishAt,
	}
	if !bindJSON(c, in) {
		return
	}
	author, _ := principal(c)
	p, err := h.svc.Content.UpdatePage(c.Request.Context(), id, in, author.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deletePage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Content.DeletePage(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
