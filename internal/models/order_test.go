package models

import "testing"

func TestComputeTotal(t *testing.T) {
	order := Order{
		Items: []OrderItem{
			{Name: "chair", Price: 12.50, Quantity: 2},
			{Name: "table", Price: 40, Quantity: 1},
			{Name: "freebie", Price: 3, Quantity: 0}, // zero quantity treated as 1
		},
	}
	if got, want := order.ComputeTotal(), 68.0; got != want {
		t.Errorf("ComputeTotal() = %v, want %v", got, want)
	}
}

func TestCanTransitionOrder(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusCompleted, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusCompleted, OrderStatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransitionOrder(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionOrder(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCreateOrderRequestValidate(t *testing.T) {
	tests := []struct {
		name     string
		req      CreateOrderRequest
		wantKeys []string
	}{
		{
			name: "valid",
			req: CreateOrderRequest{
				SellerID: "s1",
				Items:    []CreateOrderItemRequest{{Name: "lamp", Price: 10, Quantity: 1}},
			},
		},
		{
			name:     "missing seller",
			req:      CreateOrderRequest{Items: []CreateOrderItemRequest{{Name: "lamp", Price: 10}}},
			wantKeys: []string{"seller_id"},
		},
		{
			name:     "no items",
			req:      CreateOrderRequest{SellerID: "s1"},
			wantKeys: []string{"items"},
		},
		{
			name: "negative price",
			req: CreateOrderRequest{
				SellerID: "s1",
				Items:    []CreateOrderItemRequest{{Name: "lamp", Price: -1}},
			},
			wantKeys: []string{"items"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.req.Validate()
			if len(errs) != len(tt.wantKeys) {
				t.Fatalf("Validate() = %v, want keys %v", errs, tt.wantKeys)
			}
			for _, k := range tt.wantKeys {
				if _, ok := errs[k]; !ok {
					t.Errorf("Validate() missing key %q: %v", k, errs)
				}
			}
		})
	}
}
