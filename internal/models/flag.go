package models

import (
	"strings"
	"time"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

const (
	FlagStatusPending   = "pending"
	FlagStatusResolved  = "resolved"
	FlagStatusDismissed = "dismissed"
)

// Flag is a moderation record asserting that one account misbehaved on a
// specific order, raised by the counterparty. Flags are never deleted; they
// only move between statuses.
type Flag struct {
	ID              string    `json:"id"`
	FlaggedUserID   string    `json:"flagged_user_id"`
	CreatedByUserID string    `json:"created_by_user_id"`
	FlaggedUserRole string    `json:"flagged_user_role"`
	OrderID         string    `json:"order_id,omitempty"`
	ItemID          string    `json:"item_id,omitempty"`
	Reason          string    `json:"reason"`
	Status          string    `json:"status"`
	AdminNotes      string    `json:"admin_notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CreateFlagRequest struct {
	FlaggedUserID   string `json:"flagged_user_id"`
	CreatedByUserID string `json:"created_by_user_id"`
	FlaggedUserRole string `json:"flagged_user_role"`
	OrderID         string `json:"order_id"`
	ItemID          string `json:"item_id"`
	Reason          string `json:"reason"`
}

type UpdateFlagStatusRequest struct {
	Status     *string `json:"status"`
	AdminNotes *string `json:"admin_notes"`
}

// FlagFilter narrows ListFlags results. StoreID matches flags where the
// given account appears on either side of the accusation.
type FlagFilter struct {
	FlaggedUserID   string
	CreatedByUserID string
	FlaggedUserRole string
	OrderID         string
	Status          string
	StoreID         string
	Limit           int64
}

func ValidRole(role string) bool {
	return role == RoleBuyer || role == RoleSeller
}

func ValidFlagStatus(status string) bool {
	switch status {
	case FlagStatusPending, FlagStatusResolved, FlagStatusDismissed:
		return true
	}
	return false
}

func (r *CreateFlagRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Reason) == "" {
		errors["reason"] = "Reason is required"
	}
	if r.FlaggedUserRole != "" && !ValidRole(r.FlaggedUserRole) {
		errors["flagged_user_role"] = "Role must be buyer or seller"
	}
	if r.OrderID != "" && r.ItemID == "" {
		errors["item_id"] = "itemId is required for order flags"
	}

	return errors
}

func (r *UpdateFlagStatusRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Status == nil && r.AdminNotes == nil {
		errors["status"] = "At least one of status or admin_notes is required"
	}
	if r.Status != nil && !ValidFlagStatus(*r.Status) {
		errors["status"] = "Status must be pending, resolved or dismissed"
	}

	return errors
}
