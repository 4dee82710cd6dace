package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"storefront/internal/models"
)

const newsColumns = `id, title, slug, summary, body, cover_image, author_name, status, published_at,
	seo_title, seo_description, tags, featured, created_at, updated_at`

var newsList = listQuery{
	searchCols: []string{"title", "summary", "body"},
	orderCols: map[string]string{
		"published_at": "published_at",
		"created_at":   "created_at",
		"title":        "title",
	},
	defaultOrder: "published_at DESC NULLS LAST, id DESC",
}

// ListNews lists articles; publishedOnly limits it to published ones.
func (s *Store) ListNews(ctx context.Context, publishedOnly bool, opts ListOptions) ([]*models.NewsArticle, error) {
	query, args := newsList.apply(`SELECT `+newsColumns+` FROM news_articles
		WHERE (NOT $1 OR status = 'published')`, []interface{}{publishedOnly}, opts)

	articles := []*models.NewsArticle{}
	if err := s.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list news: %w", err)
	}
	if err := s.loadChangelog(ctx, s.db, articles); err != nil {
		return nil, err
	}
	return articles, nil
}

func (s *Store) GetNews(ctx context.Context, id int64, publishedOnly bool) (*models.NewsArticle, error) {
	return s.getNews(ctx, s.db, id, publishedOnly)
}

func (s *Store) getNews(ctx context.Context, q sqlx.QueryerContext, id int64, publishedOnly bool) (*models.NewsArticle, error) {
	var a models.NewsArticle
	err := sqlx.GetContext(ctx, q, &a, `SELECT `+newsColumns+` FROM news_articles
		WHERE id = $1 AND (NOT $2 OR status = 'published')`, id, publishedOnly)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.loadChangelog(ctx, q, []*models.NewsArticle{&a}); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) loadChangelog(ctx context.Context, q sqlx.QueryerContext, articles []*models.NewsArticle) error {
	if len(articles) == 0 {
		return nil
	}
	ids := make([]int64, len(articles))
	byID := make(map[int64]*models.NewsArticle, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
		a.Changelog = []models.NewsChangelog{}
		byID[a.ID] = a
	}

	var entries []models.NewsChangelog
	if err := sqlx.SelectContext(ctx, q, &entries, `
		SELECT id, article_id, title, description, impact_area, change_type, metadata
		FROM news_changelog WHERE article_id = ANY($1) ORDER BY id`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load changelog: %w", err)
	}
	for _, e := range entries {
		a := byID[e.ArticleID]
		a.Changelog = append(a.Changelog, e)
	}
	return nil
}

// CreateNews inserts an article with its changelog.
func (s *Store) CreateNews(ctx context.Context, a *models.NewsArticle) error {
	a.Tags = models.JSONOr(a.Tags, `[]`)
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var id int64
		err := namedGet(ctx, tx, &id, `
			INSERT INTO news_articles (title, slug, summary, body, cover_image, author_name, status,
				published_at, seo_title, seo_description, tags, featured)
			VALUES (:title, :slug, :summary, :body, :cover_image, :author_name, :status,
				:published_at, :seo_title, :seo_description, :tags, :featured)
			RETURNING id`, a)
		if err != nil {
			return err
		}
		if err := replaceChangelog(ctx, tx, id, a.Changelog); err != nil {
			return err
		}
		fresh, err := s.getNews(ctx, tx, id, false)
		if err != nil {
			return err
		}
		*a = *fresh
		return nil
	})
}

// UpdateNews saves an article. The changelog is replaced only when replace
// is set.
func (s *Store) UpdateNews(ctx context.Context, a *models.NewsArticle, replace bool) error {
	a.Tags = models.JSONOr(a.Tags, `[]`)
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := requireAffected(namedExec(ctx, tx, `
			UPDATE news_articles SET title = :title, slug = :slug, summary = :summary, body = :body,
				cover_image = :cover_image, author_name = :author_name, status = :status,
				published_at = :published_at, seo_title = :seo_title,
				seo_description = :seo_description, tags = :tags, featured = :featured,
				updated_at = NOW()
			WHERE id = :id`, a))
		if err != nil {
			return err
		}
		if replace {
			if err := replaceChangelog(ctx, tx, a.ID, a.Changelog); err != nil {
				return err
			}
		}
		fresh, err := s.getNews(ctx, tx, a.ID, false)
		if err != nil {
			return err
		}
		*a = *fresh
		return nil
	})
}

func replaceChangelog(ctx context.Context, tx *sqlx.Tx, articleID int64, entries []models.NewsChangelog) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM news_changelog WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("failed to clear changelog: %w", err)
	}
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO news_changelog (article_id, title, description, impact_area, change_type, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			articleID, e.Title, e.Description, e.ImpactArea, e.ChangeType, models.JSONOr(e.Metadata, `{}`))
		if err != nil {
			return translate(err)
		}
	}
	return nil
}

func (s *Store) DeleteNews(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM news_articles WHERE id = $1`, id))
}

// InsertNewsEvent records a stream publication for an article.
func (s *Store) InsertNewsEvent(ctx context.Context, ev *models.StreamEvent) error {
	return s.insertStreamEvent(ctx, "news_events", "article_id", ev)
}

// InsertPageEvent records a stream publication for a page.
func (s *Store) InsertPageEvent(ctx context.Context, ev *models.StreamEvent) error {
	return s.insertStreamEvent(ctx, "page_events", "page_id", ev)
}

func (s *Store) insertStreamEvent(ctx context.Context, table, ownerCol string, ev *models.StreamEvent) error {
	ev.Payload = models.JSONOr(ev.Payload, `{}`)
	err := s.db.GetContext(ctx, ev, fmt.Sprintf(`
		INSERT INTO %s (%s, stream_id, payload) VALUES ($1, $2, $3)
		RETURNING id, %s AS owner_id, stream_id, payload, created_at`, table, ownerCol, ownerCol),
		ev.OwnerID, ev.StreamID, ev.Payload)
	return translate(err)
}

const templateColumns = `id, name, slug, description, schema, preview_image, is_active, created_at, updated_at`

var templateList = listQuery{
	searchCols:   []string{"name", "slug"},
	orderCols:    map[string]string{"name": "name", "created_at": "created_at"},
	defaultOrder: "name ASC",
}

func (s *Store) ListPageTemplates(ctx context.Context, opts ListOptions) ([]models.PageTemplate, error) {
	query, args := templateList.apply(`SELECT `+templateColumns+` FROM page_templates WHERE TRUE`, nil, opts)
	templates := []models.PageTemplate{}
	if err := s.db.SelectContext(ctx, &templates, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list page templates: %w", err)
	}
	return templates, nil
}

func (s *Store) GetPageTemplate(ctx context.Context, id int64) (*models.PageTemplate, error) {
	var t models.PageTemplate
	if err := s.db.GetContext(ctx, &t, `SELECT `+templateColumns+` FROM page_templates WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *Store) CreatePageTemplate(ctx context.Context, t *models.PageTemplate) error {
	t.Schema = models.JSONOr(t.Schema, models.DefaultPageSchema)
	return namedGet(ctx, s.db, t, `
		INSERT INTO page_templates (name, slug, description, schema, preview_image, is_active)
		VALUES (:name, :slug, :description, :schema, :preview_image, :is_active)
		RETURNING `+templateColumns, t)
}

func (s *Store) UpdatePageTemplate(ctx context.Context, t *models.PageTemplate) error {
	t.Schema = models.JSONOr(t.Schema, models.DefaultPageSchema)
	return namedGet(ctx, s.db, t, `
		UPDATE page_templates SET name = :name, slug = :slug, description = :description,
			schema = :schema, preview_image = :preview_image, is_active = :is_active,
			updated_at = NOW()
		WHERE id = :id
		RETURNING `+templateColumns, t)
}

func (s *Store) DeletePageTemplate(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM page_templates WHERE id = $1`, id))
}

const pageColumns = `id, title, slug, locale, template_id, status, blocks, seo_title, seo_description,
	seo_keywords, publish_at, published_at, created_by, updated_by, created_at, updated_at`

var pageList = listQuery{
	searchCols:   []string{"title", "slug"},
	orderCols:    map[string]string{"title": "title", "slug": "slug", "updated_at": "updated_at", "created_at": "created_at"},
	defaultOrder: "updated_at DESC",
}

// ListPages lists pages; publishedOnly limits it to published ones ordered
// by slug unless another ordering is requested.
func (s *Store) ListPages(ctx context.Context, publishedOnly bool, opts ListOptions) ([]*models.Page, error) {
	list := pageList
	if publishedOnly {
		list.defaultOrder = "slug ASC"
	}
	query, args := list.apply(`SELECT `+pageColumns+` FROM pages
		WHERE (NOT $1 OR status = 'published')`, []interface{}{publishedOnly}, opts)

	pages := []*models.Page{}
	if err := s.db.SelectContext(ctx, &pages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	if err := s.loadTemplates(ctx, pages); err != nil {
		return nil, err
	}
	return pages, nil
}

func (s *Store) GetPage(ctx context.Context, id int64) (*models.Page, error) {
	var p models.Page
	if err := s.db.GetContext(ctx, &p, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	if err := s.loadTemplates(ctx, []*models.Page{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPublishedPageBySlug(ctx context.Context, slug string) (*models.Page, error) {
	var p models.Page
	err := s.db.GetContext(ctx, &p, `SELECT `+pageColumns+` FROM pages
		WHERE slug = $1 AND status = 'published'`, slug)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.loadTemplates(ctx, []*models.Page{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) loadTemplates(ctx context.Context, pages []*models.Page) error {
	var ids []int64
	for _, p := range pages {
		if p.TemplateID != nil {
			ids = append(ids, *p.TemplateID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var templates []models.PageTemplate
	if err := s.db.SelectContext(ctx, &templates,
		`SELECT `+templateColumns+` FROM page_templates WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load page templates: %w", err)
	}
	byID := make(map[int64]*models.PageTemplate, len(templates))
	for i := range templates {
		byID[templates[i].ID] = &templates[i]
	}
	for _, p := range pages {
		if p.TemplateID != nil {
			p.Template = byID[*p.TemplateID]
		}
	}
	return nil
}

func (s *Store) CreatePage(ctx context.Context, p *models.Page) error {
	p.Blocks = models.JSONOr(p.Blocks, models.DefaultPageSchema)
	var id int64
	err := namedGet(ctx, s.db, &id, `
		INSERT INTO pages (title, slug, locale, template_id, status, blocks, seo_title,
			seo_description, seo_keywords, publish_at, published_at, created_by, updated_by)
		VALUES (:title, :slug, :locale, :template_id, :status, :blocks, :seo_title,
			:seo_description, :seo_keywords, :publish_at, :published_at, :created_by, :updated_by)
		RETURNING id`, p)
	if err != nil {
		return err
	}
	return s.reloadPage(ctx, id, p)
}

func (s *Store) UpdatePage(ctx context.Context, p *models.Page) error {
	p.Blocks = models.JSONOr(p.Blocks, models.DefaultPageSchema)
	err := requireAffected(namedExec(ctx, s.db, `
		UPDATE pages SET title = :title, slug = :slug, locale = :locale, template_id = :template_id,
			status = :status, blocks = :blocks, seo_title = :seo_title,
			seo_description = :seo_description, seo_keywords = :seo_keywords,
			publish_at = :publish_at, published_at = :published_at, updated_by = :updated_by,
			updated_at = NOW()
		WHERE id = :id`, p))
	if err != nil {
		return err
	}
	return s.reloadPage(ctx, p.ID, p)
}

func (s *Store) reloadPage(ctx context.Context, id int64, dest *models.Page) error {
	fresh, err := s.GetPage(ctx, id)
	if err != nil {
		return err
	}
	*dest = *fresh
	return nil
}

func (s *Store) DeletePage(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM pages WHERE id = $1`, id))
}
