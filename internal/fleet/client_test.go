package fleet

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietddude/fleetclient/internal/pipeline/contract"
	"github.com/vietddude/fleetclient/internal/pipeline/diag"
	"github.com/vietddude/fleetclient/internal/pipeline/envelope"
	"github.com/vietddude/fleetclient/internal/pipeline/executor"
	"github.com/vietddude/fleetclient/internal/pipeline/taxonomy"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, data any, correlationID string) {
	t.Helper()
	body, err := envelope.Encode(data, correlationID, time.Now())
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func writeFailure(t *testing.T, w http.ResponseWriter, status int, code string) {
	t.Helper()
	body, err := envelope.EncodeFailure(taxonomy.Descriptor{Code: code, Message: "failed"}, "c-fail", time.Now())
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type testEnv struct {
	server   *httptest.Server
	client   *Client
	recorder *diag.Recorder
	sleeps   *sleepRecorder
	logs     *bytes.Buffer
}

func newTestEnv(t *testing.T, handler http.Handler, mutate func(*Options)) *testEnv {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	env := &testEnv{
		server:   srv,
		recorder: diag.NewRecorder(5),
		sleeps:   &sleepRecorder{},
		logs:     &bytes.Buffer{},
	}
	opts := Options{
		BaseURL: srv.URL,
		Keys:    StaticKey("secret"),
		Sleep:   env.sleeps.sleep,
		Sink:    env.recorder,
		Logger:  slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	if mutate != nil {
		mutate(&opts)
	}
	env.client = New(opts)
	return env
}

func TestSystemStats_TimeoutThenSuccess(t *testing.T) {
	var hits atomic.Int32
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/system/stats", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		writeEnvelope(t, w, map[string]any{"cpu": 10}, "c-stats")
	}), func(o *Options) { o.Timeout = 50 * time.Millisecond })

	res, err := env.client.SystemStats(context.Background())
	require.NoError(t, err)
	require.True(t, res.IsOk(), "unexpected failure: %v", res.Err())
	assert.Equal(t, SystemStats{CPU: 10}, res.Value())
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []time.Duration{time.Second}, env.sleeps.delays)

	last, ok := env.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, "c-stats", last.CorrelationID)
	assert.Equal(t, OpSystemStats, last.Operation)
}

func TestAuthRequired_NoKeyMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) })

	for _, keys := range []KeyProvider{nil, StaticKey("")} {
		env := newTestEnv(t, h, func(o *Options) { o.Keys = keys })

		res, err := env.client.SystemStats(context.Background())
		require.NoError(t, err)
		require.False(t, res.IsOk())
		assert.Equal(t, taxonomy.CodeUnauthorized, res.Err().Code)
		assert.Equal(t, taxonomy.CategoryAuth, res.Err().Category())
	}
	assert.Zero(t, hits.Load())
}

func TestListCameras_FallsBackOn404(t *testing.T) {
	var legacyHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cameras", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/cameras", func(w http.ResponseWriter, r *http.Request) {
		legacyHits.Add(1)
		assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"device_id":"cam-1","last_seen":"2026-01-01T00:00:00Z","camera_name":"Gate"}]`))
	})
	env := newTestEnv(t, mux, nil)

	res, err := env.client.ListCameras(context.Background())
	require.NoError(t, err)
	require.True(t, res.IsOk(), "unexpected failure: %v", res.Err())
	assert.Equal(t, []Camera{{ID: "cam-1", Name: "Gate", LastSeen: "2026-01-01T00:00:00Z"}}, res.Value())
	assert.Equal(t, int32(1), legacyHits.Load())
	assert.Empty(t, env.sleeps.delays, "404 is not retried")

	// Legacy bodies carry no correlation id.
	_, ok := env.recorder.Last()
	assert.False(t, ok)
}

func TestListCameras_FallsBackOnHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cameras", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>dashboard</body></html>"))
	})
	mux.HandleFunc("/cameras", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"device_id":"cam-2"}]`))
	})
	env := newTestEnv(t, mux, nil)

	res, err := env.client.ListCameras(context.Background())
	require.NoError(t, err)
	require.True(t, res.IsOk())
	assert.Equal(t, []Camera{{ID: "cam-2"}}, res.Value())
}

func TestListCameras_FallsBackOnHTMLErrorStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cameras", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>not here</body></html>"))
	})
	mux.HandleFunc("/cameras", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"device_id":"cam-4"}]`))
	})
	env := newTestEnv(t, mux, nil)

	res, err := env.client.ListCameras(context.Background())
	require.NoError(t, err)
	require.True(t, res.IsOk(), "unexpected failure: %v", res.Err())
	assert.Equal(t, []Camera{{ID: "cam-4"}}, res.Value())
}

func TestDo_HTMLOnAnyStatusIsRouteMisconfigured(t *testing.T) {
	for _, status := range []int{
		http.StatusOK,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusMethodNotAllowed,
		http.StatusBadGateway,
	} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(status)
				_, _ = w.Write([]byte("<!DOCTYPE html>\n<html><body>app</body></html>"))
			}), nil)

			res, err := env.client.SystemStats(context.Background())
			require.NoError(t, err)
			require.False(t, res.IsOk())
			assert.Equal(t, taxonomy.CodeRouteMisconfigured, res.Err().Code)
			if status != http.StatusOK {
				assert.Equal(t, status, res.Err().HTTPStatus)
			}

			var htmlErr *envelope.HTMLFallbackError
			assert.ErrorAs(t, res.Err(), &htmlErr)
		})
	}
}

func TestListCameras_VersionedSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cameras", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, []Camera{{ID: "cam-3", Status: "online"}}, "c-cams")
	})
	mux.HandleFunc("/cameras", func(w http.ResponseWriter, r *http.Request) {
		t.Error("legacy route must not be called")
	})
	env := newTestEnv(t, mux, nil)

	res, err := env.client.ListCameras(context.Background())
	require.NoError(t, err)
	require.True(t, res.IsOk())
	assert.Equal(t, []Camera{{ID: "cam-3", Status: "online"}}, res.Value())
	assert.Equal(t, "c-cams", env.recorder.Recent(OpListCameras)[0].CorrelationID)
}

func TestListCameras_BusinessErrorIsTerminal(t *testing.T) {
	var legacyHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cameras", func(w http.ResponseWriter, r *http.Request) {
		writeFailure(t, w, http.StatusNotFound, taxonomy.CodeDeviceNotFound)
	})
	mux.HandleFunc("/cameras", func(w http.ResponseWriter, r *http.Request) {
		legacyHits.Add(1)
	})
	env := newTestEnv(t, mux, nil)

	res, err := env.client.ListCameras(context.Background())
	require.NoError(t, err)
	require.False(t, res.IsOk())
	assert.Equal(t, taxonomy.CodeDeviceNotFound, res.Err().Code)
	assert.Equal(t, "c-fail", res.Err().CorrelationID)
	assert.Equal(t, http.StatusNotFound, res.Err().HTTPStatus)
	assert.Zero(t, legacyHits.Load())
}

func TestListCameras_BothPathsFail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/cameras", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/cameras", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	env := newTestEnv(t, mux, nil)

	res, err := env.client.ListCameras(context.Background())
	require.NoError(t, err)
	require.False(t, res.IsOk())
	assert.Equal(t, taxonomy.CodeHTTPError, res.Err().Code, "versioned error surfaces")
	assert.Equal(t, http.StatusNotFound, res.Err().HTTPStatus)
	assert.Contains(t, env.logs.String(), "Legacy fallback failed")
}

func TestRerunAnalysis_NotSupported(t *testing.T) {
	var hits atomic.Int32
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/analysis/a-1/rerun", r.URL.Path)
		w.WriteHeader(http.StatusNotImplemented)
	}), nil)

	res, err := env.client.RerunAnalysis(context.Background(), "a-1")
	require.NoError(t, err)
	require.True(t, res.IsOk(), "unexpected failure: %v", res.Err())
	assert.False(t, res.Value().Supported)
	assert.Equal(t, int32(executor.DefaultMaxAttempts), hits.Load())
}

func TestRerunAnalysis_Supported(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, RerunJob{JobID: "job-7", Status: "queued"}, "c-rerun")
	}), nil)

	res, err := env.client.RerunAnalysis(context.Background(), "a-1")
	require.NoError(t, err)
	require.True(t, res.IsOk())
	assert.True(t, res.Value().Supported)
	assert.Equal(t, "job-7", res.Value().Value.JobID)
}

func TestCaptureSnapshot_UsesCaptureBudget(t *testing.T) {
	var hits atomic.Int32
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/v1/cameras/cam%201/capture", r.URL.EscapedPath())
		time.Sleep(80 * time.Millisecond)
		writeEnvelope(t, w, Snapshot{CameraID: "cam 1", ImageURL: "/img/1.jpg"}, "c-cap")
	}), func(o *Options) {
		o.Timeout = 20 * time.Millisecond
		o.CaptureTimeout = 2 * time.Second
	})

	res, err := env.client.CaptureSnapshot(context.Background(), "cam 1")
	require.NoError(t, err)
	require.True(t, res.IsOk(), "unexpected failure: %v", res.Err())
	assert.Equal(t, "/img/1.jpg", res.Value().ImageURL)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_ContractDriftIsLoggedNotFatal(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, map[string]any{"name": 42}, "c-drift")
	}), nil)

	res, err := Do[map[string]any](context.Background(), env.client, Request{
		Operation: "drift",
		Method:    http.MethodGet,
		Path:      "/drift",
		Validator: contract.Object(contract.Field("id", contract.String()), contract.Field("name", contract.String())),
	})
	require.NoError(t, err)
	require.True(t, res.IsOk())
	assert.Equal(t, map[string]any{"name": 42.0}, res.Value())

	logs := env.logs.String()
	assert.Contains(t, logs, "Response drifted from contract")
	assert.Contains(t, logs, "id: required")
	assert.Contains(t, logs, "name: expected string, got number")
}

func TestDo_EmptyAndPlainBodies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/empty", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	})
	env := newTestEnv(t, mux, nil)

	for _, path := range []string{"/empty", "/plain"} {
		res, err := Do[*SystemStats](context.Background(), env.client, Request{Method: http.MethodGet, Path: path})
		require.NoError(t, err)
		require.True(t, res.IsOk(), path)
		assert.Nil(t, res.Value(), path)
	}
}

func TestDo_ClassifiesTransportFailures(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), nil)

	res, err := env.client.Get(context.Background(), "/system/stats", false)
	require.NoError(t, err)
	require.False(t, res.IsOk())
	assert.Equal(t, taxonomy.CodeInternalError, res.Err().Code)
	assert.True(t, res.Err().Retryable)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, env.sleeps.delays)

	_, err = res.Unwrap()
	var ce *taxonomy.ClassifiedError
	assert.ErrorAs(t, err, &ce)
}

func TestDo_InvalidRequestIsProgrammerError(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	}), nil)

	_, err := Do[any](context.Background(), env.client, Request{Method: "TRACE", Path: "/x"})
	assert.True(t, errors.Is(err, executor.ErrInvalidDescriptor))

	_, err = WithFallback[any](context.Background(), env.client,
		Request{Method: http.MethodGet, Path: "/x"},
		Request{Method: http.MethodGet, Path: "x"},
		nil,
	)
	assert.True(t, errors.Is(err, executor.ErrInvalidDescriptor))

	_, err = ProbeFeature[any](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/x", MaxAttempts: -1})
	assert.True(t, errors.Is(err, executor.ErrInvalidDescriptor))
}

func TestUnencodableBodyIsProgrammerErrorOnEveryPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/things", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/things", func(http.ResponseWriter, *http.Request) {
		t.Error("legacy request must not be sent")
	})
	env := newTestEnv(t, mux, nil)
	ctx := context.Background()
	bad := Request{Method: http.MethodPost, Path: "/things", Body: make(chan int)}

	_, err := Do[any](ctx, env.client, bad)
	assert.ErrorIs(t, err, executor.ErrInvalidDescriptor)

	_, err = WithFallback[any](ctx, env.client, bad, Request{Method: http.MethodGet, Path: "/things"}, nil)
	assert.ErrorIs(t, err, executor.ErrInvalidDescriptor)

	// versioned 404 falls back to a legacy leg that cannot be encoded
	_, err = WithFallback[any](ctx, env.client, Request{Method: http.MethodGet, Path: "/things"}, bad, nil)
	assert.ErrorIs(t, err, executor.ErrInvalidDescriptor)

	_, err = ProbeFeature[any](ctx, env.client, bad)
	assert.ErrorIs(t, err, executor.ErrInvalidDescriptor)
}

func TestResult(t *testing.T) {
	ok := Ok(3)
	v, err := ok.Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Nil(t, ok.Err())

	failed := Err[int](taxonomy.New(taxonomy.CodeCameraOffline, "offline"))
	assert.False(t, failed.IsOk())
	_, err = failed.Unwrap()
	assert.EqualError(t, err, failed.Err().Error())
}
