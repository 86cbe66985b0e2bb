package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bloghub/apiserver/internal/services"
	"github.com/bloghub/apiserver/internal/store"
	"github.com/bloghub/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCategoryRepo is an in-memory implementation of services.CategoryRepository.
type mockCategoryRepo struct {
	categories []types.Category
	nextID     int
}

func newMockCategoryRepo() *mockCategoryRepo {
	return &mockCategoryRepo{nextID: 1}
}

func (m *mockCategoryRepo) List(ctx context.Context) ([]types.Category, error) {
	return append([]types.Category{}, m.categories...), nil
}

func (m *mockCategoryRepo) Create(ctx context.Context, category types.Category) (types.Category, error) {
	for _, existing := range m.categories {
		if existing.Name == category.Name {
			return types.Category{}, store.ErrConflict
		}
	}
	category.ID = m.nextID
	m.nextID++
	category.CreatedAt = time.Now()
	category.UpdatedAt = category.CreatedAt
	m.categories = append(m.categories, category)
	return category, nil
}

func newCategoryRouter(repo *mockCategoryRepo) *chi.Mux {
	router := chi.NewRouter()
	router.Route("/categories", func(r chi.Router) {
		CategoryRouter(r, services.NewCategoryService(repo), RequireAuth(testSecret))
	})
	return router
}

func TestCreateAndListCategories(t *testing.T) {
	router := newCategoryRouter(newMockCategoryRepo())

	rec := postJSON(t, router, "/categories", CategoryCreateRequest{Name: "  go  "}, authHeader(t, 1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created types.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "go", created.Name)

	listReq := httptest.NewRequest(http.MethodGet, "/categories", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	require.Equal(t, http.StatusOK, listRec.Code)
	var categories []types.Category
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &categories))
	require.Len(t, categories, 1)
	assert.Equal(t, created.ID, categories[0].ID)
}

func TestCreateCategoryDuplicate(t *testing.T) {
	router := newCategoryRouter(newMockCategoryRepo())

	rec := postJSON(t, router, "/categories", CategoryCreateRequest{Name: "go"}, authHeader(t, 1))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Equal after trim still collides.
	rec = postJSON(t, router, "/categories", CategoryCreateRequest{Name: " go "}, authHeader(t, 1))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateCategoryValidation(t *testing.T) {
	router := newCategoryRouter(newMockCategoryRepo())

	rec := postJSON(t, router, "/categories", CategoryCreateRequest{Name: "   "}, authHeader(t, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/categories", CategoryCreateRequest{Name: "go"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
