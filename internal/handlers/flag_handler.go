package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/trovia/backend/internal/models"
	"github.com/trovia/backend/internal/services"
)

type FlagHandler struct {
	flagService *services.FlagService
}

func NewFlagHandler(flagService *services.FlagService) *FlagHandler {
	return &FlagHandler{flagService: flagService}
}

func (h *FlagHandler) CreateFlag(w http.ResponseWriter, r *http.Request) {
	var req models.CreateFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		log.Printf("[CreateFlag] Validation errors: %v", errors)
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	result, err := h.flagService.CreateFlag(r.Context(), &req)
	if err != nil {
		switch err {
		case services.ErrMissingReason, services.ErrMissingItem, services.ErrMissingFlaggedUser:
			writeJSON(w, http.StatusBadRequest, models.NewErrorResponse(err.Error()))
		case services.ErrDuplicateFlag:
			writeJSON(w, http.StatusConflict, models.NewErrorResponse("Flag already submitted for this order item"))
		default:
			log.Printf("[CreateFlag] Service error: %v", err)
			writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to create flag"))
		}
		return
	}

	log.Printf("[CreateFlag] Flag created: %s user=%s role=%s", result.Flag.ID, result.Flag.FlaggedUserID, result.Flag.FlaggedUserRole)
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(result))
}

func (h *FlagHandler) ListFlags(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := models.FlagFilter{
		FlaggedUserID:   query.Get("flaggedUserId"),
		CreatedByUserID: query.Get("createdByUserId"),
		FlaggedUserRole: query.Get("flaggedUserRole"),
		OrderID:         query.Get("orderId"),
		Status:          query.Get("status"),
		StoreID:         query.Get("storeId"),
	}
	if filter.FlaggedUserRole != "" && !models.ValidRole(filter.FlaggedUserRole) {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid flaggedUserRole"))
		return
	}
	if filter.Status != "" && !models.ValidFlagStatus(filter.Status) {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid status"))
		return
	}
	if rawLimit := query.Get("limit"); rawLimit != "" {
		if v, err := strconv.ParseInt(rawLimit, 10, 64); err == nil && v > 0 {
			filter.Limit = v
		}
	}

	flags, err := h.flagService.ListFlags(r.Context(), filter)
	if err != nil {
		log.Printf("[ListFlags] Service error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to list flags"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(flags))
}

func (h *FlagHandler) UpdateFlagStatus(w http.ResponseWriter, r *http.Request) {
	flagID := chi.URLParam(r, "flagId")

	var req models.UpdateFlagStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	result, err := h.flagService.UpdateFlagStatus(r.Context(), flagID, &req)
	if err != nil {
		if err == services.ErrFlagNotFound {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Flag not found"))
			return
		}
		log.Printf("[UpdateFlagStatus] Service error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to update flag"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(result))
}
