package logging

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type capturedReport struct {
	message string
	err     error
	extras  map[string]interface{}
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []capturedReport
}

func (r *recordingReporter) Report(message string, err error, extras map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, capturedReport{message: message, err: err, extras: extras})
}

func (r *recordingReporter) Flush() {}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(Config{Level: "loud"})
	require.Error(t, err)
}

func TestReporterReceivesOnlyErrors(t *testing.T) {
	t.Parallel()

	reporter := &recordingReporter{}
	logger, err := NewLogger(Config{Component: "test", Level: "debug", Reporter: reporter})
	require.NoError(t, err)

	cause := errors.New("sendgrid unavailable")
	logger = logger.With(zap.String("institution_id", "inst-1"))
	logger.Info("staff invited")
	logger.Warn("slow query")
	logger.Error("send invitation", zap.Error(cause), zap.String("email", "bursar@school.test"))

	require.Len(t, reporter.reports, 1)
	got := reporter.reports[0]
	require.Equal(t, "send invitation", got.message)
	require.ErrorIs(t, got.err, cause)
	require.Equal(t, "inst-1", got.extras["institution_id"])
	require.Equal(t, "bursar@school.test", got.extras["email"])
	require.Equal(t, "test", got.extras["component"])
}

func TestRollbarReporterDisabledWithoutToken(t *testing.T) {
	t.Parallel()

	require.Nil(t, NewRollbarReporter(RollbarConfig{}))
}

func TestRequestLoggerStoresLoggerOnContext(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(zaptest.NewLogger(t)))
	r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
		_, ok := FromContext(req.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, resp.Code)
}
