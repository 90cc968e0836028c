// Package handler exposes the catalog, search and cart services over
// HTTP/JSON.
package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/coffeeshop/internal/domain/apperr"
	"github.com/xenking/coffeeshop/internal/domain/cart"
	"github.com/xenking/coffeeshop/internal/domain/catalog"
	"github.com/xenking/coffeeshop/internal/domain/search"
)

const maxBodyBytes = 1 << 20

// CatalogService is the catalog API used by the handlers.
type CatalogService interface {
	Get(ctx context.Context, id string) (*catalog.Coffee, error)
	List(ctx context.Context) ([]catalog.Coffee, error)
	Create(ctx context.Context, in catalog.CreateInput) (*catalog.Coffee, error)
	Update(ctx context.Context, id string, p catalog.Patch) (*catalog.Coffee, error)
	Remove(ctx context.Context, id string) error
}

// Searcher runs catalog searches.
type Searcher interface {
	Search(ctx context.Context, f search.Filter) (*search.Result, error)
}

// CartService is the cart API used by the handlers.
type CartService interface {
	GetOrCreate(ctx context.Context, userID *string) (*cart.Cart, error)
	Get(ctx context.Context, cartID string) (*cart.Cart, error)
	AddItem(ctx context.Context, cartID, coffeeID string, quantity int) (*cart.Item, error)
	UpdateItem(ctx context.Context, cartID, itemID string, quantity int) (*cart.Item, error)
	RemoveItem(ctx context.Context, cartID, itemID string) error
}

var (
	_ CatalogService = (*catalog.Service)(nil)
	_ Searcher       = (*search.Engine)(nil)
	_ CartService    = (*cart.Service)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	catalog CatalogService
	search  Searcher
	carts   CartService
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(catalogSvc CatalogService, searcher Searcher, carts CartService) *Handler {
	return &Handler{
		catalog: catalogSvc,
		search:  searcher,
		carts:   carts,
	}
}

// Register mounts the API under /api on r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/coffees", h.listCoffees).Methods(http.MethodGet)
	api.HandleFunc("/coffees", h.createCoffee).Methods(http.MethodPost)
	api.HandleFunc("/coffees/search", h.searchCoffees).Methods(http.MethodGet)
	api.HandleFunc("/coffees/{id}", h.getCoffee).Methods(http.MethodGet)
	api.HandleFunc("/coffees/{id}", h.updateCoffee).Methods(http.MethodPatch)
	api.HandleFunc("/coffees/{id}", h.deleteCoffee).Methods(http.MethodDelete)

	api.HandleFunc("/cart", h.createCart).Methods(http.MethodPost)
	api.HandleFunc("/cart/{id}", h.getCart).Methods(http.MethodGet)
	api.HandleFunc("/cart/{id}/items", h.addItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/{cartId}/items/{itemId}", h.updateItem).Methods(http.MethodPatch)
	api.HandleFunc("/cart/{cartId}/items/{itemId}", h.removeItem).Methods(http.MethodDelete)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// pathID returns the named path variable if it is a UUID. Anything else
// cannot identify a stored entity and is reported as not found.
func pathID(r *http.Request, name, kind string) (string, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperr.NotFound(kind, raw)
	}
	s := id.String()
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String(strings.ReplaceAll(kind, " ", "_")+".id", s))
	return s, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Invalid("body", "cannot read request body")
	}
	return data, nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// messageOf returns the client-facing message of a classified error,
// without the wrapping context added on the way up.
func messageOf(err error) string {
	var (
		nf  *apperr.NotFoundError
		inv *apperr.InvalidArgumentError
		cf  *apperr.ConflictError
	)
	switch {
	case errors.As(err, &nf):
		return nf.Error()
	case errors.As(err, &inv):
		return inv.Error()
	case errors.As(err, &cf):
		return cf.Error()
	default:
		return err.Error()
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := messageOf(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	}
	writeMessage(w, status, msg)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already sent; a failed write means the client is gone.
	_, _ = w.Write(e.Bytes())
}
