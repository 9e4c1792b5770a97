package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-worker/internal/domain"
	"github.com/kursadbilgin/notification-worker/internal/observability"
	"github.com/kursadbilgin/notification-worker/internal/service"
	"go.uber.org/zap"
)

const (
	WorkerSecretHeader = "x-worker-secret"

	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type, x-worker-secret"
	corsAllowMethods = "POST, OPTIONS"
)

type WorkerHandlerConfig struct {
	// Secret enables the x-worker-secret check when non-empty.
	Secret string
	// ConfigErr is a startup configuration problem; every invocation fails
	// with it until the process is reconfigured.
	ConfigErr error
}

type WorkerHandler struct {
	runner    service.Runner
	secret    string
	configErr error
	logger    *zap.Logger
}

func NewWorkerHandler(runner service.Runner, cfg WorkerHandlerConfig, logger *zap.Logger) *WorkerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	configErr := cfg.ConfigErr
	if configErr == nil && runner == nil {
		configErr = fmt.Errorf("%w: dispatcher is not configured", domain.ErrConfiguration)
	}

	return &WorkerHandler{
		runner:    runner,
		secret:    cfg.Secret,
		configErr: configErr,
		logger:    logger,
	}
}

// RegisterWorkerRoutes mounts the invocation endpoint for every method so
// that the handler itself answers preflight and rejects non-POST requests.
func RegisterWorkerRoutes(router fiber.Router, h *WorkerHandler) {
	router.All("/", h.Invoke)
	router.All("/invoke", h.Invoke)
}

type invokeRequest struct {
	BatchSize any `json:"batchSize"`
}

func (h *WorkerHandler) Invoke(c *fiber.Ctx) error {
	setCORSHeaders(c)

	switch c.Method() {
	case fiber.MethodOptions:
		c.Status(fiber.StatusOK)
		return nil
	case fiber.MethodPost:
	default:
		return fiber.NewError(fiber.StatusMethodNotAllowed, "Method Not Allowed")
	}

	if h.secret != "" && !secretMatches(c.Get(WorkerSecretHeader), h.secret) {
		return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized worker request")
	}

	if h.configErr != nil {
		return fiber.NewError(fiber.StatusInternalServerError, h.configErr.Error())
	}

	ctx := observability.WithTrigger(c.UserContext(), observability.TriggerHTTP)
	summary, err := h.runner.Run(ctx, parseBatchSize(c.Body()))
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			h.logger.Error("worker is misconfigured", zap.Error(err))
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(summary)
}

// parseBatchSize reads the optional batchSize field. Anything other than a
// JSON number falls back to the default.
func parseBatchSize(body []byte) int {
	if len(body) == 0 {
		return service.DefaultBatchSize
	}

	var req invokeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return service.DefaultBatchSize
	}

	size, ok := req.BatchSize.(float64)
	if !ok {
		return service.DefaultBatchSize
	}

	switch {
	case size >= service.MaxBatchSize:
		return service.MaxBatchSize
	case size < service.MinBatchSize:
		return service.MinBatchSize
	default:
		return int(size)
	}
}

func secretMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func setCORSHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, corsAllowOrigin)
	c.Set(fiber.HeaderAccessControlAllowHeaders, corsAllowHeaders)
	c.Set(fiber.HeaderAccessControlAllowMethods, corsAllowMethods)
}
