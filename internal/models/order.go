package models

import (
	"strings"
	"time"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

type OrderItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Order struct {
	ID        string      `json:"id"`
	BuyerID   string      `json:"buyer_id"`
	SellerID  string      `json:"seller_id"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ComputeTotal derives the order total from its line items. The stored total
// is always recomputed on item change so the two never drift apart.
func (o *Order) ComputeTotal() float64 {
	var total float64
	for _, it := range o.Items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		total += it.Price * float64(qty)
	}
	return total
}

// orderTransitions lists the allowed forward moves per status. Cancellation
// is allowed any time before completion.
var orderTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusCompleted, OrderStatusCancelled},
}

func CanTransitionOrder(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

type CreateOrderItemRequest struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type CreateOrderRequest struct {
	SellerID string                   `json:"seller_id"`
	Items    []CreateOrderItemRequest `json:"items"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (r *CreateOrderRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.SellerID == "" {
		errors["seller_id"] = "Seller is required"
	}
	if len(r.Items) == 0 {
		errors["items"] = "At least one item is required"
	}
	for _, it := range r.Items {
		if strings.TrimSpace(it.Name) == "" {
			errors["items"] = "Item name is required"
			break
		}
		if it.Price < 0 {
			errors["items"] = "Item price cannot be negative"
			break
		}
	}

	return errors
}

func (r *UpdateOrderStatusRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Status == "" {
		errors["status"] = "Status is required"
	} else if !ValidOrderStatus(r.Status) {
		errors["status"] = "Invalid order status"
	}

	return errors
}
