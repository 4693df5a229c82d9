package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trovia/backend/internal/middleware"
	"github.com/trovia/backend/internal/models"
	"github.com/trovia/backend/internal/services"
)

type OrderHandler struct {
	orderService services.OrderService
}

func NewOrderHandler(orderService services.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	order, err := h.orderService.Create(r.Context(), userID, &req)
	if err != nil {
		log.Printf("[CreateOrder] Service error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to create order"))
		return
	}

	log.Printf("[CreateOrder] Order created: %s buyer=%s seller=%s total=%.2f", order.ID, order.BuyerID, order.SellerID, order.Total)
	writeJSON(w, http.StatusCreated, models.NewSuccessResponse(order))
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	order, err := h.orderService.GetByID(r.Context(), orderID)
	if err != nil {
		if err == services.ErrOrderNotFound {
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Order not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to get order"))
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(order))
}

func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orderID := chi.URLParam(r, "orderId")

	var req models.UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Invalid request body"))
		return
	}

	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errors))
		return
	}

	order, err := h.orderService.UpdateStatus(r.Context(), userID, orderID, req.Status)
	if err != nil {
		switch err {
		case services.ErrOrderNotFound:
			writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Order not found"))
		case services.ErrNotParticipant:
			writeJSON(w, http.StatusForbidden, models.NewErrorResponse("Not authorized to update this order"))
		case services.ErrInvalidTransition:
			writeJSON(w, http.StatusConflict, models.NewErrorResponse("Invalid order status transition"))
		default:
			writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("Failed to update order"))
		}
		return
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(order))
}
