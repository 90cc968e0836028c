package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coffeeshop/internal/handler"
	"github.com/xenking/coffeeshop/pkg/health"
)

func TestRouter(t *testing.T) {
	hs := health.New()
	hs.AddReadinessCheck("always", time.Second, func(context.Context) error { return nil })
	r := newRouter(handler.NewHandler(nil, nil, nil), hs)

	for _, tt := range []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/livez", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodPut, "/api/coffees", http.StatusMethodNotAllowed},
	} {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, w.Code)
		})
	}

	hs.SetReady(true)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
