package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/config"
	"github.com/ifuryst/coverly/internal/models"
	"github.com/ifuryst/coverly/internal/service"
)

type memStore struct {
	byNotion map[string]*models.Article
	saves    int
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{byNotion: map[string]*models.Article{}}
}

func (m *memStore) FindByNotionID(_ context.Context, id string) (*models.Article, error) {
	a, ok := m.byNotion[id]
	if !ok {
		return nil, service.ErrArticleNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) Save(_ context.Context, a *models.Article) error {
	m.saves++
	if a.ID == 0 {
		m.nextID++
		a.ID = m.nextID
	}
	cp := *a
	m.byNotion[*a.NotionID] = &cp
	return nil
}

func page(id, title, status, summary, edited string) map[string]any {
	return map[string]any{
		"id":               id,
		"last_edited_time": edited,
		"properties": map[string]any{
			"Name": map[string]any{
				"type":  "title",
				"title": []any{map[string]any{"plain_text": title}},
			},
			"Status": map[string]any{
				"type":   "status",
				"status": map[string]any{"name": status},
			},
			"Summary": map[string]any{
				"type":      "rich_text",
				"rich_text": []any{map[string]any{"plain_text": summary}},
			},
		},
	}
}

func paragraph(id, text string, hasChildren bool) map[string]any {
	return map[string]any{
		"id":           id,
		"type":         "paragraph",
		"has_children": hasChildren,
		"paragraph": map[string]any{
			"rich_text": []any{map[string]any{"plain_text": text}},
		},
	}
}

func newNotionServer(t *testing.T, pages *[]map[string]any) *httptest.Server {
	t.Helper()
	blocks := map[string][]map[string]any{
		"p1": {paragraph("b1", "First paragraph.", true), paragraph("b2", "Second paragraph.", false)},
		"b1": {paragraph("b3", "Nested.", false)},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-06-28", r.Header.Get("Notion-Version"))

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/databases/db1/query":
			_ = json.NewEncoder(w).Encode(map[string]any{"results": *pages, "has_more": false})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/blocks/"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/blocks/"), "/children")
			_ = json.NewEncoder(w).Encode(map[string]any{"results": blocks[id], "has_more": false})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestService(srv *httptest.Server, store ArticleStore) *Service {
	return NewService(&config.NotionConfig{
		Token:      "secret",
		DatabaseID: "db1",
		APIVersion: "2022-06-28",
		BaseURL:    srv.URL,
	}, store, zap.NewNop())
}

func TestSyncPages_CreatesAndUpdates(t *testing.T) {
	pages := []map[string]any{
		page("p1", "Royal Mail fined", "Done", "A short summary", "2025-03-01T10:00:00Z"),
		page("p2", "Draft idea", "In progress", "", "2025-03-01T10:00:00Z"),
	}
	srv := newNotionServer(t, &pages)
	defer srv.Close()

	store := newMemStore()
	svc := newTestService(srv, store)

	require.NoError(t, svc.SyncPages(context.Background()))
	require.Len(t, store.byNotion, 2)

	a := store.byNotion["p1"]
	assert.Equal(t, "Royal Mail fined", a.Title)
	assert.Equal(t, "royal-mail-fined", a.Slug)
	assert.Equal(t, "A short summary", a.Excerpt)
	assert.Equal(t, "First paragraph.\nNested.\nSecond paragraph.", a.Body)
	assert.Equal(t, models.ArticlePublished, a.Status)
	assert.Equal(t, models.ArticleDraft, store.byNotion["p2"].Status)

	// unchanged pages are skipped
	require.NoError(t, svc.SyncPages(context.Background()))
	assert.Equal(t, 2, store.saves)

	pages[1] = page("p2", "Draft idea", "Published", "", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC).Format(time.RFC3339))
	require.NoError(t, svc.SyncPages(context.Background()))
	assert.Equal(t, 3, store.saves)
	assert.Equal(t, models.ArticlePublished, store.byNotion["p2"].Status)
	assert.Equal(t, uint(2), store.byNotion["p2"].ID)
}

func TestSyncPages_QueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newTestService(srv, newMemStore()).SyncPages(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestArticleStatus(t *testing.T) {
	assert.Equal(t, models.ArticlePublished, articleStatus("Done"))
	assert.Equal(t, models.ArticlePublished, articleStatus("published"))
	assert.Equal(t, models.ArticleDraft, articleStatus("Not started"))
	assert.Equal(t, models.ArticleDraft, articleStatus(""))
}
