package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"besiktning-sync-server/internal/domain"
	"besiktning-sync-server/internal/middleware"
	"besiktning-sync-server/internal/repository"
	"besiktning-sync-server/internal/service"
	"besiktning-sync-server/pkg/response"

	"github.com/gorilla/mux"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// parentParams maps each child type to the query parameter its list
// endpoint filters by.
var parentParams = map[domain.EntityType]string{
	domain.EntityTypeInspection:  "property_id",
	domain.EntityTypeApartment:   "inspection_id",
	domain.EntityTypeDefect:      "apartment_id",
	domain.EntityTypeMeasurement: "inspection_id",
}

// EntityHandler serves the REST CRUD surface for one entity type. The
// same handler code backs /properties, /inspections, /apartments,
// /defects and /measurements; only the bound type differs.
type EntityHandler struct {
	entityService *service.EntityService
	entityType    domain.EntityType
}

func NewEntityHandler(entityService *service.EntityService, t domain.EntityType) *EntityHandler {
	return &EntityHandler{
		entityService: entityService,
		entityType:    t,
	}
}

func (h *EntityHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.Create).Methods("POST", "OPTIONS")
	r.HandleFunc("", h.List).Methods("GET", "OPTIONS")
	r.HandleFunc("/{id:[0-9]+}", h.Get).Methods("GET", "OPTIONS")
	r.HandleFunc("/{id:[0-9]+}", h.Update).Methods("PUT", "OPTIONS")
	r.HandleFunc("/{id:[0-9]+}", h.Delete).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/{id:[0-9]+}/restore", h.Restore).Methods("POST", "OPTIONS")
}

func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.BadRequest(w, response.CodeValidationError, "failed to read request body")
		return
	}

	var probe struct {
		ClientID *string `json:"client_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		response.BadRequest(w, response.CodeValidationError, "invalid request body")
		return
	}

	entity, err := h.entityService.Create(r.Context(), userID, h.entityType, probe.ClientID, body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.Created(w, entity)
}

func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.ListFilter{Limit: defaultListLimit}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, response.CodeValidationError, "limit must be an integer")
			return
		}
		if limit < 1 {
			limit = 1
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			response.BadRequest(w, response.CodeValidationError, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	if param := parentParams[h.entityType]; param != "" {
		if raw := r.URL.Query().Get(param); raw != "" {
			parentID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				response.BadRequest(w, response.CodeValidationError, param+" must be an integer")
				return
			}
			filter.ParentID = &parentID
		}
	}

	entities, err := h.entityService.List(r.Context(), h.entityType, filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if entities == nil {
		entities = []domain.Entity{}
	}

	response.Success(w, map[string]interface{}{
		"items":  entities,
		"count":  len(entities),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	entity, err := h.entityService.Get(r.Context(), h.entityType, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.Success(w, entity)
}

func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.BadRequest(w, response.CodeValidationError, "failed to read request body")
		return
	}

	var probe struct {
		BaseRevision *int64 `json:"base_revision"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		response.BadRequest(w, response.CodeValidationError, "invalid request body")
		return
	}
	if probe.BaseRevision == nil {
		response.BadRequest(w, response.CodeValidationError, "base_revision is required")
		return
	}

	entity, err := h.entityService.Update(r.Context(), userID, h.entityType, id, *probe.BaseRevision, body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.Success(w, entity)
}

func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var baseRevision int64
	if raw := r.URL.Query().Get("base_revision"); raw != "" {
		var err error
		if baseRevision, err = strconv.ParseInt(raw, 10, 64); err != nil {
			response.BadRequest(w, response.CodeValidationError, "base_revision must be an integer")
			return
		}
	}

	deleted, err := h.entityService.Delete(r.Context(), userID, h.entityType, id, baseRevision)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.Success(w, map[string]interface{}{"deleted": deleted})
}

func (h *EntityHandler) Restore(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == 0 {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	entity, err := h.entityService.Restore(r.Context(), userID, h.entityType, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	response.Success(w, entity)
}

func (h *EntityHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		response.BadRequest(w, response.CodeValidationError, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *EntityHandler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	var cerr *service.ConflictError

	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, string(h.entityType)+" not found")
	case errors.As(err, &verr):
		response.BadRequest(w, response.CodeValidationError, verr.Message)
	case errors.As(err, &cerr):
		response.Conflict(w, cerr.Error(), cerr.Conflict)
	default:
		log.Printf("%s request failed: %v", h.entityType, err)
		response.InternalError(w, "internal error")
	}
}
