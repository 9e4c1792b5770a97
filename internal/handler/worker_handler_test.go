package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-worker/internal/domain"
	"github.com/kursadbilgin/notification-worker/internal/observability"
	"github.com/kursadbilgin/notification-worker/internal/transport"
	"go.uber.org/zap"
)

type stubRunner struct {
	calls  int
	gotMax int
	runFn  func(ctx context.Context, batchSize int) (domain.Summary, error)
}

func (s *stubRunner) Run(ctx context.Context, batchSize int) (domain.Summary, error) {
	s.calls++
	s.gotMax = batchSize
	if s.runFn != nil {
		return s.runFn(ctx, batchSize)
	}
	return domain.NewSummary(), nil
}

func newWorkerTestApp(t *testing.T, h *WorkerHandler) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	RegisterWorkerRoutes(app, h)
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func decodeError(t *testing.T, body []byte) string {
	t.Helper()

	var parsed map[string]string
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v, body=%s", err, body)
	}
	return parsed["error"]
}

func assertCORS(t *testing.T, resp *http.Response) {
	t.Helper()

	if got := resp.Header.Get(fiber.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := resp.Header.Get(fiber.HeaderAccessControlAllowHeaders); got != corsAllowHeaders {
		t.Fatalf("Access-Control-Allow-Headers = %q, want %q", got, corsAllowHeaders)
	}
}

func TestWorkerHandlerPreflight(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	app := newWorkerTestApp(t, NewWorkerHandler(runner, WorkerHandlerConfig{Secret: "s3cret"}, nil))

	resp, body := performRequest(t, app, http.MethodOptions, "/", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(body) != 0 {
		t.Fatalf("body = %q, want empty", body)
	}
	assertCORS(t, resp)
	if runner.calls != 0 {
		t.Fatalf("runner calls = %d, want 0", runner.calls)
	}
}

func TestWorkerHandlerMethodNotAllowed(t *testing.T) {
	t.Parallel()

	app := newWorkerTestApp(t, NewWorkerHandler(&stubRunner{}, WorkerHandlerConfig{}, nil))

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		resp, body := performRequest(t, app, method, "/invoke", "", nil)
		if resp.StatusCode != fiber.StatusMethodNotAllowed {
			t.Fatalf("%s status = %d, want 405", method, resp.StatusCode)
		}
		if got := decodeError(t, body); got != "Method Not Allowed" {
			t.Fatalf("%s error = %q, want Method Not Allowed", method, got)
		}
		assertCORS(t, resp)
	}
}

func TestWorkerHandlerSecret(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		secret     string
		headers    map[string]string
		wantStatus int
	}{
		{name: "missing header", secret: "s3cret", wantStatus: fiber.StatusUnauthorized},
		{name: "wrong header", secret: "s3cret", headers: map[string]string{WorkerSecretHeader: "guess"}, wantStatus: fiber.StatusUnauthorized},
		{name: "matching header", secret: "s3cret", headers: map[string]string{WorkerSecretHeader: "s3cret"}, wantStatus: fiber.StatusOK},
		{name: "no secret configured", wantStatus: fiber.StatusOK},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runner := &stubRunner{}
			app := newWorkerTestApp(t, NewWorkerHandler(runner, WorkerHandlerConfig{Secret: tc.secret}, nil))

			resp, body := performRequest(t, app, http.MethodPost, "/", "", tc.headers)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tc.wantStatus, body)
			}
			if tc.wantStatus == fiber.StatusUnauthorized {
				if got := decodeError(t, body); got != "Unauthorized worker request" {
					t.Fatalf("error = %q, want Unauthorized worker request", got)
				}
				if runner.calls != 0 {
					t.Fatalf("runner calls = %d, want 0", runner.calls)
				}
			}
		})
	}
}

func TestWorkerHandlerConfigurationError(t *testing.T) {
	t.Parallel()

	configErr := fmt.Errorf("%w: missing DATABASE_DSN", domain.ErrConfiguration)
	runner := &stubRunner{}
	app := newWorkerTestApp(t, NewWorkerHandler(runner, WorkerHandlerConfig{ConfigErr: configErr}, nil))

	resp, body := performRequest(t, app, http.MethodPost, "/", `{"batchSize":5}`, nil)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if got := decodeError(t, body); got != configErr.Error() {
		t.Fatalf("error = %q, want %q", got, configErr.Error())
	}
	if runner.calls != 0 {
		t.Fatalf("runner calls = %d, want 0", runner.calls)
	}

	app = newWorkerTestApp(t, NewWorkerHandler(nil, WorkerHandlerConfig{}, nil))
	resp, _ = performRequest(t, app, http.MethodPost, "/", "", nil)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("nil runner status = %d, want 500", resp.StatusCode)
	}
}

func TestWorkerHandlerRunnerError(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{
		runFn: func(ctx context.Context, batchSize int) (domain.Summary, error) {
			return domain.NewSummary(), errors.New("failed to fetch candidate jobs: connection refused")
		},
	}
	app := newWorkerTestApp(t, NewWorkerHandler(runner, WorkerHandlerConfig{}, nil))

	resp, body := performRequest(t, app, http.MethodPost, "/", "", nil)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if got := decodeError(t, body); got != "failed to fetch candidate jobs: connection refused" {
		t.Fatalf("error = %q", got)
	}
	assertCORS(t, resp)
}

func TestWorkerHandlerBatchSize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
		want int
	}{
		{name: "missing body", body: "", want: 20},
		{name: "empty object", body: `{}`, want: 20},
		{name: "malformed json", body: `{"batchSize":`, want: 20},
		{name: "null body", body: `null`, want: 20},
		{name: "array body", body: `[1,2]`, want: 20},
		{name: "string value", body: `{"batchSize":"50"}`, want: 20},
		{name: "within range", body: `{"batchSize":42}`, want: 42},
		{name: "fraction truncated", body: `{"batchSize":7.9}`, want: 7},
		{name: "above max", body: `{"batchSize":500}`, want: 100},
		{name: "zero", body: `{"batchSize":0}`, want: 1},
		{name: "negative", body: `{"batchSize":-5}`, want: 1},
		{name: "huge", body: `{"batchSize":1e300}`, want: 100},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			runner := &stubRunner{}
			app := newWorkerTestApp(t, NewWorkerHandler(runner, WorkerHandlerConfig{}, nil))

			resp, body := performRequest(t, app, http.MethodPost, "/invoke", tc.body, nil)
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, body)
			}
			if runner.gotMax != tc.want {
				t.Fatalf("batchSize = %d, want %d", runner.gotMax, tc.want)
			}
		})
	}
}

func TestWorkerHandlerSuccessBody(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{
		runFn: func(ctx context.Context, batchSize int) (domain.Summary, error) {
			if trigger, _ := observability.TriggerFromContext(ctx); trigger != observability.TriggerHTTP {
				t.Errorf("trigger = %q, want %q", trigger, observability.TriggerHTTP)
			}
			return domain.Summary{
				Scanned:        3,
				Claimed:        3,
				Sent:           1,
				RetryScheduled: 1,
				Failed:         1,
				Errors:         []string{},
			}, nil
		},
	}
	app := newWorkerTestApp(t, NewWorkerHandler(runner, WorkerHandlerConfig{}, nil))

	resp, body := performRequest(t, app, http.MethodPost, "/", `{"batchSize":3}`, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	assertCORS(t, resp)

	want := `{"scanned":3,"claimed":3,"sent":1,"retryScheduled":1,"failed":1,"errors":[]}`
	if string(body) != want {
		t.Fatalf("body = %s, want %s", body, want)
	}
}
