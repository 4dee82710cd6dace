package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// ContentStore is the persistence behind news, page templates and pages.
type ContentStore interface {
	ListNews(ctx context.Context, publishedOnly bool, opts store.ListOptions) ([]*models.NewsArticle, error)
	GetNews(ctx context.Context, id int64, publishedOnly bool) (*models.NewsArticle, error)
	CreateNews(ctx context.Context, a *models.NewsArticle) error
	UpdateNews(ctx context.Context, a *models.NewsArticle, replace bool) error
	DeleteNews(ctx context.Context, id int64) error
	InsertNewsEvent(ctx context.Context, ev *models.StreamEvent) error

	ListPageTemplates(ctx context.Context, opts store.ListOptions) ([]models.PageTemplate, error)
	GetPageTemplate(ctx context.Context, id int64) (*models.PageTemplate, error)
	CreatePageTemplate(ctx context.Context, t *models.PageTemplate) error
	UpdatePageTemplate(ctx context.Context, t *models.PageTemplate) error
	DeletePageTemplate(ctx context.Context, id int64) error

	ListPages(ctx context.Context, publishedOnly bool, opts store.ListOptions) ([]*models.Page, error)
	GetPage(ctx context.Context, id int64) (*models.Page, error)
	GetPublishedPageBySlug(ctx context.Context, slug string) (*models.Page, error)
	CreatePage(ctx context.Context, p *models.Page) error
	UpdatePage(ctx context.Context, p *models.Page) error
	DeletePage(ctx context.Context, id int64) error
	InsertPageEvent(ctx context.Context, ev *models.StreamEvent) error
}

type ContentService struct {
	store     ContentStore
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger
}

func NewContentService(store ContentStore, publisher Publisher) *ContentService {
	return &ContentService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// NewsInput is the write form of an article. A nil Changelog leaves the
// stored entries untouched on update.
type NewsInput struct {
	Title          string                  `json:"title" binding:"required"`
	Slug           string                  `json:"slug" binding:"required"`
	Summary        string                  `json:"summary"`
	Body           string                  `json:"body"`
	CoverImage     string                  `json:"cover_image"`
	AuthorName     string                  `json:"author_name"`
	Status         string                  `json:"status" binding:"omitempty,oneof=draft review published archived"`
	PublishedAt    *time.Time              `json:"published_at"`
	SEOTitle       string                  `json:"seo_title"`
	SEODescription string                  `json:"seo_description"`
	Tags           datatypes.JSON          `json:"tags"`
	Featured       bool                    `json:"featured"`
	Changelog      *[]models.NewsChangelog `json:"changelog"`
}

func (in *NewsInput) apply(a *models.NewsArticle) {
	a.Title = in.Title
	a.Slug = in.Slug
	a.Summary = in.Summary
	a.Body = in.Body
	a.CoverImage = in.CoverImage
	a.AuthorName = in.AuthorName
	a.Status = in.Status
	if a.Status == "" {
		a.Status = models.StatusDraft
	}
	if in.PublishedAt != nil {
		a.PublishedAt = in.PublishedAt
	}
	a.SEOTitle = in.SEOTitle
	a.SEODescription = in.SEODescription
	a.Tags = in.Tags
	a.Featured = in.Featured
	if in.Changelog != nil {
		a.Changelog = *in.Changelog
	}
}

// News

func (s *ContentService) ListNews(ctx context.Context, publishedOnly bool, opts store.ListOptions) ([]*models.NewsArticle, error) {
	return s.store.ListNews(ctx, publishedOnly, opts)
}

func (s *ContentService) GetNews(ctx context.Context, id int64, publishedOnly bool) (*models.NewsArticle, error) {
	a, err := s.store.GetNews(ctx, id, publishedOnly)
	return a, storeErr(err)
}

func (s *ContentService) CreateNews(ctx context.Context, in *NewsInput) (*models.NewsArticle, error) {
	ctx, span := util.StartSpan(ctx, "ContentService.CreateNews")
	defer span.End()

	a := &models.NewsArticle{}
	in.apply(a)
	a.StampPublication(s.now())
	if err := s.store.CreateNews(ctx, a); err != nil {
		return nil, storeErr(err)
	}
	s.publishNews(ctx, a)
	return a, nil
}

func (s *ContentService) UpdateNews(ctx context.Context, id int64, in *NewsInput) (*models.NewsArticle, error) {
	ctx, span := util.StartSpan(ctx, "ContentService.UpdateNews")
	defer span.End()

	a, err := s.store.GetNews(ctx, id, false)
	if err != nil {
		return nil, storeErr(err)
	}
	in.apply(a)
	a.StampPublication(s.now())
	if err := s.store.UpdateNews(ctx, a, in.Changelog != nil); err != nil {
		return nil, storeErr(err)
	}
	s.publishNews(ctx, a)
	return a, nil
}

func (s *ContentService) DeleteNews(ctx context.Context, id int64) error {
	return storeErr(s.store.DeleteNews(ctx, id))
}

func (s *ContentService) publishNews(ctx context.Context, a *models.NewsArticle) {
	if a.Status != models.StatusPublished || s.publisher == nil {
		return
	}
	record := models.NewsRecord(a)
	streamID := s.publisher.Publish(ctx, models.EventKindNews, record)
	if streamID == "" {
		return
	}
	ev := &models.StreamEvent{OwnerID: a.ID, StreamID: streamID, Payload: encodeRecord(record)}
	if err := s.store.InsertNewsEvent(ctx, ev); err != nil {
		s.logger.Error("Failed to record news event", zap.Int64("article_id", a.ID), zap.Error(err))
	}
}

// Page templates

func (s *ContentService) ListPageTemplates(ctx context.Context, opts store.ListOptions) ([]models.PageTemplate, error) {
	return s.store.ListPageTemplates(ctx, opts)
}

func (s *ContentService) GetPageTemplate(ctx context.Context, id int64) (*models.PageTemplate, error) {
	t, err := s.store.GetPageTemplate(ctx, id)
	return t, storeErr(err)
}

func (s *ContentService) CreatePageTemplate(ctx context.Context, t *models.PageTemplate) error {
	return storeErr(s.store.CreatePageTemplate(ctx, t))
}

func (s *ContentService) UpdatePageTemplate(ctx context.Context, t *models.PageTemplate) error {
	return storeErr(s.store.UpdatePageTemplate(ctx, t))
}

func (s *ContentService) DeletePageTemplate(ctx context.Context, id int64) error {
	return storeErr(s.store.DeletePageTemplate(ctx, id))
}

// Pages

// PageInput is the write form of a page.
type PageInput struct {
	Title          string         `json:"title" binding:"required"`
	Slug           string         `json:"slug" binding:"required"`
	Locale         string         `json:"locale"`
	TemplateID     *int64         `json:"template_id"`
	Status         string         `json:"status" binding:"omitempty,oneof=draft review published archived"`
	Blocks         datatypes.JSON `json:"blocks"`
	SEOTitle       string         `json:"seo_title"`
	SEODescription string         `json:"seo_description"`
	SEOKeywords    string         `json:"seo_keywords"`
	PublishAt      *time.Time     `json:"publish_at"`
}

func (in *PageInput) apply(p *models.Page) {
	p.Title = in.Title
	p.Slug = in.Slug
	p.Locale = in.Locale
	if p.Locale == "" {
		p.Locale = "ru"
	}
	p.TemplateID = in.TemplateID
	p.Status = in.Status
	if p.Status == "" {
		p.Status = models.StatusDraft
	}
	if in.Blocks != nil {
		p.Blocks = in.Blocks
	}
	p.SEOTitle = in.SEOTitle
	p.SEODescription = in.SEODescription
	p.SEOKeywords = in.SEOKeywords
	p.PublishAt = in.PublishAt
}

func (s *ContentService) ListPages(ctx context.Context, publishedOnly bool, opts store.ListOptions) ([]*models.Page, error) {
	return s.store.ListPages(ctx, publishedOnly, opts)
}

func (s *ContentService) GetPage(ctx context.Context, id int64) (*models.Page, error) {
	p, err := s.store.GetPage(ctx, id)
	return p, storeErr(err)
}

func (s *ContentService) GetPublishedPage(ctx context.Context, slug string) (*models.Page, error) {
	p, err := s.store.GetPublishedPageBySlug(ctx, slug)
	return p, storeErr(err)
}

func (s *ContentService) CreatePage(ctx context.Context, in *PageInput, author string) (*models.Page, error) {
	ctx, span := util.StartSpan(ctx, "ContentService.CreatePage")
	defer span.End()

	p := &models.Page{CreatedBy: author, UpdatedBy: author}
	in.apply(p)
	p.StampPublication(s.now())
	if err := s.store.CreatePage(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	s.publishPage(ctx, p)
	return p, nil
}

func (s *ContentService) UpdatePage(ctx context.Context, id int64, in *PageInput, author string) (*models.Page, error) {
	ctx, span := util.StartSpan(ctx, "ContentService.UpdatePage")
	defer span.End()

	p, err := s.store.GetPage(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	in.apply(p)
	p.UpdatedBy = author
	p.StampPublication(s.now())
	if err := s.store.UpdatePage(ctx, p); err != nil {
		return nil, storeErr(err)
	}
	s.publishPage(ctx, p)
	return p, nil
}

func (s *ContentService) DeletePage(ctx context.Context, id int64) error {
	return storeErr(s.store.DeletePage(ctx, id))
}

func (s *ContentService) publishPage(ctx context.Context, p *models.Page) {
	if p.Status != models.StatusPublished || s.publisher == nil {
		return
	}
	record := models.PageRecord(p)
	streamID := s.publisher.Publish(ctx, models.EventKindPage, record)
	if streamID == "" {
		return
	}
	ev := &models.StreamEvent{OwnerID: p.ID, StreamID: streamID, Payload: encodeRecord(record)}
	if err := s.store.InsertPageEvent(ctx, ev); err != nil {
		s.logger.Error("Failed to record page event", zap.Int64("page_id", p.ID), zap.Error(err))
	}
}

func encodeRecord(r models.EventRecord) datatypes.JSON {
	raw, err := json.Marshal(r)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return raw
}
