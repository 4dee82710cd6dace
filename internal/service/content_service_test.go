package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/store"
)

// fakeContentStore keeps news and pages in memory and records the stream
// events written next to them.
type fakeContentStore struct {
	ContentStore

	nextID     int64
	news       map[int64]*models.NewsArticle
	pages      map[int64]*models.Page
	replaced   []bool
	newsEvents []*models.StreamEvent
	pageEvents []*models.StreamEvent
}

func newFakeContentStore() *fakeContentStore {
	return &fakeContentStore{
		news:  map[int64]*models.NewsArticle{},
		pages: map[int64]*models.Page{},
	}
}

func (f *fakeContentStore) GetNews(_ context.Context, id int64, _ bool) (*models.NewsArticle, error) {
	a, ok := f.news[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	cp.Changelog = append([]models.NewsChangelog(nil), a.Changelog...)
	return &cp, nil
}

func (f *fakeContentStore) CreateNews(_ context.Context, a *models.NewsArticle) error {
	f.nextID++
	a.ID = f.nextID
	cp := *a
	f.news[a.ID] = &cp
	return nil
}

func (f *fakeContentStore) UpdateNews(_ context.Context, a *models.NewsArticle, replace bool) error {
	old, ok := f.news[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	f.replaced = append(f.replaced, replace)
	cp := *a
	if !replace {
		cp.Changelog = old.Changelog
	}
	f.news[a.ID] = &cp
	return nil
}

func (f *fakeContentStore) InsertNewsEvent(_ context.Context, ev *models.StreamEvent) error {
	f.newsEvents = append(f.newsEvents, ev)
	return nil
}

func (f *fakeContentStore) GetPage(_ context.Context, id int64) (*models.Page, error) {
	p, ok := f.pages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeContentStore) CreatePage(_ context.Context, p *models.Page) error {
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.pages[p.ID] = &cp
	return nil
}

func (f *fakeContentStore) UpdatePage(_ context.Context, p *models.Page) error {
	if _, ok := f.pages[p.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	f.pages[p.ID] = &cp
	return nil
}

func (f *fakeContentStore) InsertPageEvent(_ context.Context, ev *models.StreamEvent) error {
	f.pageEvents = append(f.pageEvents, ev)
	return nil
}

var contentNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newContentService(st *fakeContentStore, pub Publisher) *ContentService {
	svc := NewContentService(st, pub)
	svc.now = func() time.Time { return contentNow }
	return svc
}

func TestCreateNewsDraftIsNotStampedOrPublished(t *testing.T) {
	st := newFakeContentStore()
	pub := newFakePublisher("1-0")
	svc := newContentService(st, pub)

	a, err := svc.CreateNews(context.Background(), &NewsInput{Title: "Spring", Slug: "spring"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusDraft, a.Status)
	assert.Nil(t, a.PublishedAt)
	assert.Empty(t, pub.records[models.EventKindNews])
	assert.Empty(t, st.newsEvents)
}

func TestCreateNewsPublishedStampsAndRecordsEvent(t *testing.T) {
	st := newFakeContentStore()
	pub := newFakePublisher("1700000000000-0")
	svc := newContentService(st, pub)

	a, err := svc.CreateNews(context.Background(), &NewsInput{
		Title:  "Spring",
		Slug:   "spring",
		Status: models.StatusPublished,
	})
	require.NoError(t, err)

	require.NotNil(t, a.PublishedAt)
	assert.True(t, a.PublishedAt.Equal(contentNow))

	require.Len(t, pub.records[models.EventKindNews], 1)
	assert.Equal(t, "spring", pub.records[models.EventKindNews][0]["slug"])

	require.Len(t, st.newsEvents, 1)
	ev := st.newsEvents[0]
	assert.Equal(t, a.ID, ev.OwnerID)
	assert.Equal(t, "1700000000000-0", ev.StreamID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "spring", payload["slug"])
}

func TestCreateNewsKeepsExplicitPublishedAt(t *testing.T) {
	svc := newContentService(newFakeContentStore(), nil)
	when := contentNow.Add(-48 * time.Hour)

	a, err := svc.CreateNews(context.Background(), &NewsInput{
		Title:       "Archive",
		Slug:        "archive",
		Status:      models.StatusPublished,
		PublishedAt: &when,
	})
	require.NoError(t, err)
	assert.True(t, a.PublishedAt.Equal(when))
}

func TestPublishNewsRecordsOfflineEvent(t *testing.T) {
	st := newFakeContentStore()
	svc := newContentService(st, newFakePublisher(models.StreamOffline))

	_, err := svc.CreateNews(context.Background(), &NewsInput{
		Title:  "Spring",
		Slug:   "spring",
		Status: models.StatusPublished,
	})
	require.NoError(t, err)

	require.Len(t, st.newsEvents, 1)
	assert.Equal(t, models.StreamOffline, st.newsEvents[0].StreamID)
}

func TestUpdateNewsStampsOnFirstPublication(t *testing.T) {
	st := newFakeContentStore()
	svc := newContentService(st, newFakePublisher("1-0"))

	a, err := svc.CreateNews(context.Background(), &NewsInput{Title: "Spring", Slug: "spring"})
	require.NoError(t, err)
	require.Nil(t, a.PublishedAt)

	updated, err := svc.UpdateNews(context.Background(), a.ID, &NewsInput{
		Title:  "Spring",
		Slug:   "spring",
		Status: models.StatusPublished,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.PublishedAt)
	assert.True(t, updated.PublishedAt.Equal(contentNow))
	assert.Len(t, st.newsEvents, 1)
}

func TestUpdateNewsReplacesChangelogOnlyWhenGiven(t *testing.T) {
	st := newFakeContentStore()
	svc := newContentService(st, nil)

	entries := []models.NewsChangelog{{Title: "Sizes", ChangeType: models.ChangeAdded}}
	a, err := svc.CreateNews(context.Background(), &NewsInput{
		Title:     "Release",
		Slug:      "release",
		Changelog: &entries,
	})
	require.NoError(t, err)

	// omitted list keeps what is stored
	updated, err := svc.UpdateNews(context.Background(), a.ID, &NewsInput{Title: "Release 2", Slug: "release"})
	require.NoError(t, err)
	assert.Equal(t, "Release 2", updated.Title)
	require.Len(t, st.news[a.ID].Changelog, 1)

	// an empty list clears it
	empty := []models.NewsChangelog{}
	_, err = svc.UpdateNews(context.Background(), a.ID, &NewsInput{Title: "Release 2", Slug: "release", Changelog: &empty})
	require.NoError(t, err)
	assert.Empty(t, st.news[a.ID].Changelog)

	assert.Equal(t, []bool{false, true}, st.replaced)
}

func TestUpdateNewsMissing(t *testing.T) {
	svc := newContentService(newFakeContentStore(), nil)

	_, err := svc.UpdateNews(context.Background(), 99, &NewsInput{Title: "x", Slug: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePageDefaultsAndAuthor(t *testing.T) {
	st := newFakeContentStore()
	pub := newFakePublisher("1-0")
	svc := newContentService(st, pub)

	p, err := svc.CreatePage(context.Background(), &PageInput{Title: "About", Slug: "about"}, "editor@example.com")
	require.NoError(t, err)

	assert.Equal(t, "ru", p.Locale)
	assert.Equal(t, models.StatusDraft, p.Status)
	assert.Equal(t, "editor@example.com", p.CreatedBy)
	assert.Equal(t, "editor@example.com", p.UpdatedBy)
	assert.Nil(t, p.PublishedAt)
	assert.Empty(t, st.pageEvents)
}

func TestUpdatePagePublishesAndRecordsEvent(t *testing.T) {
	st := newFakeContentStore()
	svc := newContentService(st, newFakePublisher("1700000000001-0"))

	p, err := svc.CreatePage(context.Background(), &PageInput{Title: "About", Slug: "about", Locale: "en"}, "a@example.com")
	require.NoError(t, err)

	updated, err := svc.UpdatePage(context.Background(), p.ID, &PageInput{
		Title:  "About",
		Slug:   "about",
		Locale: "en",
		Status: models.StatusPublished,
	}, "b@example.com")
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", updated.CreatedBy)
	assert.Equal(t, "b@example.com", updated.UpdatedBy)
	require.NotNil(t, updated.PublishedAt)
	assert.True(t, updated.PublishedAt.Equal(contentNow))

	require.Len(t, st.pageEvents, 1)
	assert.Equal(t, p.ID, st.pageEvents[0].OwnerID)
	assert.Equal(t, "1700000000001-0", st.pageEvents[0].StreamID)
}

func TestPublishPageRecordsOfflineEvent(t *testing.T) {
	st := newFakeContentStore()
	svc := newContentService(st, newFakePublisher(models.StreamOffline))

	_, err := svc.CreatePage(context.Background(), &PageInput{
		Title:  "About",
		Slug:   "about",
		Status: models.StatusPublished,
	}, "a@example.com")
	require.NoError(t, err)

	require.Len(t, st.pageEvents, 1)
	assert.Equal(t, models.StreamOffline, st.pageEvents[0].StreamID)
}
