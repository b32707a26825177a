package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockroom/internal/domain"
	"stockroom/internal/middleware"
	"stockroom/internal/repository"
	"stockroom/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type unavailableRepository struct{}

func (unavailableRepository) Load(context.Context) ([]domain.Product, bool, error) {
	return nil, false, errors.New("disk unavailable")
}

func (unavailableRepository) Save(context.Context, []domain.Product) error {
	return errors.New("disk unavailable")
}

var handlerNow = time.Date(2025, time.June, 1, 9, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T, repo repository.CollectionRepository) (http.Handler, *service.ProductStore) {
	t.Helper()
	store := service.NewProductStore(repo, zap.NewNop(),
		service.WithClock(func() time.Time { return handlerNow }))
	handler := NewProductHandler(store, zap.NewNop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

type validationEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Details struct {
			ValidationErrors []middleware.ValidationError `json:"validation_errors"`
		} `json:"details"`
	} `json:"error"`
}

func TestListProducts_ReturnsSeedWithStockLevels(t *testing.T) {
	// given
	router, _ := newTestRouter(t, repository.NewMemoryRepository())

	// when
	w := do(t, router, http.MethodGet, "/api/products", "")

	// then
	require.Equal(t, http.StatusOK, w.Code)
	var products []ProductResponse
	decodeInto(t, w, &products)
	require.Len(t, products, 5)
	assert.Equal(t, "1", products[0].ID)
	assert.Equal(t, "Wireless Mouse", products[0].Name)
	assert.Equal(t, "high", products[0].StockLevel)
	assert.Equal(t, "medium", products[1].StockLevel)
	assert.Equal(t, "0", w.Header().Get("X-Collection-Version"))
}

func TestListProducts_Search(t *testing.T) {
	router, _ := newTestRouter(t, repository.NewMemoryRepository())

	w := do(t, router, http.MethodGet, "/api/products?q=accessories", "")

	require.Equal(t, http.StatusOK, w.Code)
	var products []ProductResponse
	decodeInto(t, w, &products)
	require.Len(t, products, 2)
	for _, p := range products {
		assert.Equal(t, "Accessories", p.Category)
	}
}

func TestListProducts_QueryTooLong(t *testing.T) {
	router, _ := newTestRouter(t, repository.NewMemoryRepository())

	w := do(t, router, http.MethodGet, "/api/products?q="+strings.Repeat("a", 101), "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var envelope validationEnvelope
	decodeInto(t, w, &envelope)
	require.Len(t, envelope.Error.Details.ValidationErrors, 1)
	assert.Equal(t, "q", envelope.Error.Details.ValidationErrors[0].Field)
}

func TestCreateProduct_Created(t *testing.T) {
	// given
	router, store := newTestRouter(t, repository.NewMemoryRepository())
	body := `{"name":"Pen","price":2.5,"category":"Office","description":"Blue ink","stock":500}`

	// when
	w := do(t, router, http.MethodPost, "/api/products", body)

	// then
	require.Equal(t, http.StatusCreated, w.Code)
	var created ProductResponse
	decodeInto(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Pen", created.Name)
	assert.Equal(t, 2.5, created.Price)
	assert.Equal(t, 500, created.Stock)
	assert.Equal(t, "high", created.StockLevel)
	assert.True(t, handlerNow.Equal(created.CreatedAt))

	products, err := store.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 6)
	assert.Equal(t, created.ID, products[0].ID)
}

func TestCreateProduct_CoercesNumericStrings(t *testing.T) {
	router, _ := newTestRouter(t, repository.NewMemoryRepository())
	body := `{"name":"Pen","price":"12.5","category":"Office","description":"Blue ink","stock":"7"}`

	w := do(t, router, http.MethodPost, "/api/products", body)

	require.Equal(t, http.StatusCreated, w.Code)
	var created ProductResponse
	decodeInto(t, w, &created)
	assert.Equal(t, 12.5, created.Price)
	assert.Equal(t, 7, created.Stock)
}

func TestCreateProduct_ValidationErrorsSortedByField(t *testing.T) {
	// given
	router, store := newTestRouter(t, repository.NewMemoryRepository())
	body := `{"name":"","price":-1,"category":"","description":"","stock":1.5}`

	// when
	w := do(t, router, http.MethodPost, "/api/products", body)

	// then
	require.Equal(t, http.StatusBadRequest, w.Code)
	var envelope validationEnvelope
	decodeInto(t, w, &envelope)
	assert.Equal(t, "validation failed", envelope.Error.Message)
	assert.Equal(t, []middleware.ValidationError{
		{Field: "category", Message: "Category is required"},
		{Field: "description", Message: "Description is required"},
		{Field: "name", Message: "Product name is required"},
		{Field: "price", Message: "Price must be positive"},
		{Field: "stock", Message: "Expected integer, received float"},
	}, envelope.Error.Details.ValidationErrors)
	assert.Zero(t, store.Version())
}

func TestCreateProduct_MalformedBody(t *testing.T) {
	router, _ := newTestRouter(t, repository.NewMemoryRepository())

	w := do(t, router, http.MethodPost, "/api/products", `{"name":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProduct(t *testing.T) {
	router, _ := newTestRouter(t, repository.NewMemoryRepository())

	found := do(t, router, http.MethodGet, "/api/products/3", "")
	missing := do(t, router, http.MethodGet, "/api/products/nope", "")

	require.Equal(t, http.StatusOK, found.Code)
	var product ProductResponse
	decodeInto(t, found, &product)
	assert.Equal(t, "USB-C Hub", product.Name)

	assert.Equal(t, http.StatusNotFound, missing.Code)
	var envelope middleware.ErrorResponse
	decodeInto(t, missing, &envelope)
	assert.Equal(t, "nope", envelope.Error.Details["id"])
}

func TestUpdateProduct(t *testing.T) {
	// given
	router, _ := newTestRouter(t, repository.NewMemoryRepository())
	body := `{"name":"Wireless Mouse","price":24.99,"category":"Electronics","description":"Ergonomic wireless mouse","stock":40}`

	// when
	w := do(t, router, http.MethodPut, "/api/products/1", body)

	// then
	require.Equal(t, http.StatusOK, w.Code)
	var updated ProductResponse
	decodeInto(t, w, &updated)
	assert.Equal(t, "1", updated.ID)
	assert.Equal(t, 24.99, updated.Price)
	assert.Equal(t, 40, updated.Stock)
	assert.Equal(t, "low", updated.StockLevel)
	assert.Equal(t, "2024-01-15T00:00:00Z", updated.CreatedAt.Format(time.RFC3339))
}

func TestUpdateProduct_Errors(t *testing.T) {
	valid := `{"name":"X","price":1,"category":"C","description":"D","stock":1}`

	tests := []struct {
		name       string
		id         string
		body       string
		wantStatus int
	}{
		{name: "unknown id", id: "missing", body: valid, wantStatus: http.StatusNotFound},
		{name: "invalid fields", id: "1", body: `{"name":"","price":1,"category":"C","description":"D","stock":1}`, wantStatus: http.StatusBadRequest},
		{name: "invalid fields on unknown id", id: "missing", body: `{"price":-1}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", id: "1", body: `[`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, repository.NewMemoryRepository())

			w := do(t, router, http.MethodPut, "/api/products/"+tt.id, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestDeleteProduct(t *testing.T) {
	// given
	router, _ := newTestRouter(t, repository.NewMemoryRepository())

	// when
	first := do(t, router, http.MethodDelete, "/api/products/2", "")
	second := do(t, router, http.MethodDelete, "/api/products/2", "")

	// then
	require.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, `{"id":"2"}`, first.Body.String())
	assert.Equal(t, http.StatusNotFound, second.Code)

	var products []ProductResponse
	decodeInto(t, do(t, router, http.MethodGet, "/api/products", ""), &products)
	assert.Len(t, products, 4)
}

func TestStorageFailuresReturn500(t *testing.T) {
	router, _ := newTestRouter(t, unavailableRepository{})

	requests := []struct{ method, target, body string }{
		{http.MethodGet, "/api/products", ""},
		{http.MethodGet, "/api/products/1", ""},
		{http.MethodPost, "/api/products", `{"name":"Pen","price":1,"category":"Office","description":"Ink","stock":1}`},
		{http.MethodDelete, "/api/products/1", ""},
	}

	for _, req := range requests {
		w := do(t, router, req.method, req.target, req.body)
		assert.Equal(t, http.StatusInternalServerError, w.Code, "%s %s", req.method, req.target)
		var envelope middleware.ErrorResponse
		decodeInto(t, w, &envelope)
		assert.Equal(t, "storage unavailable", envelope.Error.Message)
	}
}

func TestReload(t *testing.T) {
	router, store := newTestRouter(t, repository.NewMemoryRepository())

	w := do(t, router, http.MethodPost, "/api/products/reload", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, uint64(1), store.Version())
}

func TestProperty_CreateThenGetRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a created product is served back unchanged", prop.ForAll(
		func(name string, cents int, stock int) bool {
			router, _ := newTestRouter(t, repository.NewMemoryRepository())
			payload, _ := json.Marshal(map[string]interface{}{
				"name":        name,
				"price":       float64(cents) / 100,
				"category":    "Office",
				"description": "generated",
				"stock":       stock,
			})

			created := do(t, router, http.MethodPost, "/api/products", string(payload))
			if created.Code != http.StatusCreated {
				return false
			}
			var c ProductResponse
			if err := json.Unmarshal(created.Body.Bytes(), &c); err != nil {
				return false
			}

			fetched := do(t, router, http.MethodGet, "/api/products/"+c.ID, "")
			var f ProductResponse
			if err := json.Unmarshal(fetched.Body.Bytes(), &f); err != nil {
				return false
			}
			return fetched.Code == http.StatusOK &&
				f.Name == name &&
				f.Price == float64(cents)/100 &&
				f.Stock == stock &&
				f.StockLevel == string(domain.Product{Stock: stock}.StockLevel())
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.IntRange(0, 1000000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestStreamEvents_DeliversStoreEvents(t *testing.T) {
	// given
	router, store := newTestRouter(t, repository.NewMemoryRepository())
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/products/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() []string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return lines
			}
			lines = append(lines, line)
		}
	}
	assert.Equal(t, []string{"retry: 3000"}, readFrame())

	// when
	_, err = store.DeleteProduct(context.Background(), "4")
	require.NoError(t, err)

	// then
	frame := readFrame()
	require.Len(t, frame, 3)
	assert.Equal(t, "id: 1", frame[0])
	assert.Equal(t, "event: deleted", frame[1])
	assert.JSONEq(t, `{"kind":"deleted","productId":"4","version":1}`, strings.TrimPrefix(frame[2], "data: "))
}
