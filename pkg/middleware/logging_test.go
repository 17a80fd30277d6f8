package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/andreibyf/aishacrm-2-sub007/pkg/composables"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestWithLogger_PropagatesRequestID(t *testing.T) {
	r := mux.NewRouter()
	r.Use(WithLogger(quietLogger(), DefaultLoggerOptions()))
	var hasLogger bool
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		hasLogger = composables.UseLogger(req.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	require.True(t, hasLogger)
}

func TestWithLogger_RecoversPanic(t *testing.T) {
	r := mux.NewRouter()
	r.Use(WithLogger(quietLogger(), DefaultLoggerOptions()))
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
