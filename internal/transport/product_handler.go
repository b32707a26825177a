package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"stockroom/internal/domain"
	"stockroom/internal/middleware"
	"stockroom/internal/schema"
	"stockroom/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const defaultHeartbeat = 25 * time.Second

// ListQuery represents the query string accepted by the list endpoint
type ListQuery struct {
	Q string `json:"q" validate:"max=100"`
}

// ProductRequest represents the create and update payload.
// Price and stock are left untyped so the record schema can coerce them.
type ProductRequest struct {
	Name        string      `json:"name"`
	Price       interface{} `json:"price"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Stock       interface{} `json:"stock"`
}

// ProductResponse represents a product as shown in the catalog table
type ProductResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Stock       int       `json:"stock"`
	StockLevel  string    `json:"stockLevel"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DeleteResponse carries the id of a removed product
type DeleteResponse struct {
	ID string `json:"id"`
}

// ProductHandler handles HTTP requests for product operations
type ProductHandler struct {
	products  service.ProductService
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(products service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products:  products,
		logger:    logger,
		heartbeat: defaultHeartbeat,
	}
}

// RegisterRoutes registers all product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/events", h.StreamEvents)
		r.Post("/reload", h.Reload)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})
}

// ListProducts returns the collection, optionally filtered by ?q=
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := ListQuery{Q: r.URL.Query().Get("q")}
	if err := middleware.ValidateRequest(query); err != nil {
		middleware.RespondWithValidationErrors(w, middleware.FormatValidationErrors(err))
		return
	}

	products, err := h.products.SearchProducts(r.Context(), query.Q)
	if err != nil {
		h.respondWithStoreError(w, err)
		return
	}

	response := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		response = append(response, toProductResponse(p))
	}

	w.Header().Set("X-Collection-Version", strconv.FormatUint(h.products.Version(), 10))
	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// GetProduct returns one product
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithStoreError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProductResponse(product))
}

// CreateProduct handles product creation
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.products.CreateProduct(r.Context(), input)
	if err != nil {
		h.respondWithStoreError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, toProductResponse(product))
}

// UpdateProduct handles replacing the editable fields of a product
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	product, err := h.products.UpdateProduct(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		h.respondWithStoreError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toProductResponse(product))
}

// DeleteProduct handles product removal
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := h.products.DeleteProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithStoreError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, DeleteResponse{ID: id})
}

// Reload drops the cached collection so the next read comes from storage
func (h *ProductHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.products.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// StreamEvents pushes store change notifications as server-sent events.
// Only the most recent undelivered event is kept per client; every event
// means "refetch", so intermediate ones can be skipped.
func (h *ProductHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.RespondWithError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events := make(chan service.Event, 1)
	unsubscribe := h.products.Subscribe(func(e service.Event) {
		for {
			select {
			case events <- e:
				return
			default:
			}
			select {
			case <-events:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e := <-events:
			payload, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("Failed to encode event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Version, e.Kind, payload)
			flusher.Flush()
		}
	}
}

func (h *ProductHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (schema.ProductInput, bool) {
	var req ProductRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		h.logger.Debug("Product request decode failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return schema.ProductInput{}, false
	}

	return schema.ProductInput{
		Name:        req.Name,
		Price:       req.Price,
		Category:    req.Category,
		Description: req.Description,
		Stock:       req.Stock,
	}, true
}

func (h *ProductHandler) respondWithStoreError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var notFound *domain.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		middleware.RespondWithValidationErrors(w, middleware.FormatValidationErrors(validationErr))
	case errors.As(err, &notFound):
		middleware.RespondWithErrorDetails(w, http.StatusNotFound, "product not found", map[string]interface{}{"id": notFound.ID})
	case errors.Is(err, domain.ErrStorage):
		h.logger.Error("Storage failure", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "storage unavailable")
	default:
		h.logger.Error("Unexpected store error", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func toProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Category:    p.Category,
		Description: p.Description,
		Stock:       p.Stock,
		StockLevel:  string(p.StockLevel()),
		CreatedAt:   p.CreatedAt,
	}
}
