package models

import (
	"time"

	"gorm.io/datatypes"
)

// Publication statuses shared by news and pages
const (
	StatusDraft     = "draft"
	StatusReview    = "review"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

type NewsArticle struct {
	ID             int64           `db:"id" json:"id"`
	Title          string          `db:"title" json:"title"`
	Slug           string          `db:"slug" json:"slug"`
	Summary        string          `db:"summary" json:"summary"`
	Body           string          `db:"body" json:"body"`
	CoverImage     string          `db:"cover_image" json:"cover_image"`
	AuthorName     string          `db:"author_name" json:"author_name"`
	Status         string          `db:"status" json:"status,omitempty"`
	PublishedAt    *time.Time      `db:"published_at" json:"published_at"`
	SEOTitle       string          `db:"seo_title" json:"seo_title"`
	SEODescription string          `db:"seo_description" json:"seo_description"`
	Tags           datatypes.JSON  `db:"tags" json:"tags"`
	Featured       bool            `db:"featured" json:"featured"`
	Changelog      []NewsChangelog `db:"-" json:"changelog"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Publish marks the article published, stamping the first publication time.
func (a *NewsArticle) Publish(now time.Time) {
	a.Status = StatusPublished
	a.StampPublication(now)
}

// StampPublication fills PublishedAt for published articles that lack it.
func (a *NewsArticle) StampPublication(now time.Time) {
	if a.Status == StatusPublished && a.PublishedAt == nil {
		a.PublishedAt = &now
	}
}

// Changelog change types
const (
	ChangeAdded   = "added"
	ChangeChanged = "changed"
	ChangeFixed   = "fixed"
	ChangeRemoved = "removed"
)

type NewsChangelog struct {
	ID          int64          `db:"id" json:"id"`
	ArticleID   int64          `db:"article_id" json:"-"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	ImpactArea  string         `db:"impact_area" json:"impact_area"`
	ChangeType  string         `db:"change_type" json:"change_type"`
	Metadata    datatypes.JSON `db:"metadata" json:"metadata"`
}

// StreamEvent records what was pushed to the event stream for a news article
// or page, and the stream id it got (or "offline").
type StreamEvent struct {
	ID        int64          `db:"id" json:"id"`
	OwnerID   int64          `db:"owner_id" json:"owner_id"`
	StreamID  string         `db:"stream_id" json:"stream_id"`
	Payload   datatypes.JSON `db:"payload" json:"payload"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

type PageTemplate struct {
	ID           int64          `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Slug         string         `db:"slug" json:"slug"`
	Description  string         `db:"description" json:"description"`
	Schema       datatypes.JSON `db:"schema" json:"schema"`
	PreviewImage string         `db:"preview_image" json:"preview_image"`
	IsActive     bool           `db:"is_active" json:"is_active"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// DefaultPageSchema is the empty builder layout for templates and pages.
const DefaultPageSchema = `{"sections": [], "props": {}}`

type Page struct {
	ID             int64          `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Slug           string         `db:"slug" json:"slug"`
	Locale         string         `db:"locale" json:"locale"`
	TemplateID     *int64         `db:"template_id" json:"-"`
	Template       *PageTemplate  `db:"-" json:"template"`
	Status         string         `db:"status" json:"status"`
	Blocks         datatypes.JSON `db:"blocks" json:"blocks"`
	SEOTitle       string         `db:"seo_title" json:"seo_title"`
	SEODescription string         `db:"seo_description" json:"seo_description"`
	SEOKeywords    string         `db:"seo_keywords" json:"seo_keywords"`
	PublishAt      *time.Time     `db:"publish_at" json:"publish_at"`
	PublishedAt    *time.Time     `db:"published_at" json:"published_at"`
	CreatedBy      string         `db:"created_by" json:"created_by"`
	UpdatedBy      string         `db:"updated_by" json:"updated_by"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// StampPublication fills PublishedAt for published pages that lack it.
func (p *Page) StampPublication(now time.Time) {
	if p.Status == StatusPublished && p.PublishedAt == nil {
		p.PublishedAt = &now
	}
}
