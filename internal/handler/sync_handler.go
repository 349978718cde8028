package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"besiktning-sync-server/internal/domain"
	"besiktning-sync-server/internal/middleware"
	"besiktning-sync-server/internal/service"
	"besiktning-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

// IdempotencyKeyHeader must accompany every push; it is what makes
// retrying a batch over a flaky connection safe.
const IdempotencyKeyHeader = "X-Idempotency-Key"

type SyncHandler struct {
	syncService *service.SyncService
	validate    *validator.Validate
}

func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		validate:    validator.New(),
	}
}

func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" {
		response.BadRequest(w, response.CodeMissingHeader, IdempotencyKeyHeader+" header is required")
		return
	}

	var req domain.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, response.CodeValidationError, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		response.BadRequest(w, response.CodeValidationError, "Validation failed: "+err.Error())
		return
	}

	if max := h.syncService.MaxOpsPerPush(); len(req.Ops) > max {
		response.PayloadTooLarge(w, fmt.Sprintf("batch exceeds %d operations", max))
		return
	}

	body, err := h.syncService.ProcessPush(r.Context(), userID, &req, key)
	if err != nil {
		response.InternalError(w, "failed to process push")
		return
	}

	response.Success(w, json.RawMessage(body))
}

func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	since := r.URL.Query().Get("since")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			response.BadRequest(w, response.CodeValidationError, "limit must be an integer")
			return
		}
	}

	result, err := h.syncService.ProcessPull(r.Context(), since, limit)
	if err != nil {
		response.InternalError(w, "failed to process pull")
		return
	}

	response.Success(w, result)
}

func (h *SyncHandler) Handshake(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.syncService.Handshake())
}
