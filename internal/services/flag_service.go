package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trovia/backend/internal/models"
)

var (
	ErrFlagNotFound       = errors.New("flag not found")
	ErrDuplicateFlag      = errors.New("flag already exists for this order item")
	ErrMissingFlaggedUser = errors.New("flaggedUserId is required")
	ErrMissingItem        = errors.New("itemId is required for order flags")
	ErrMissingReason      = errors.New("reason is required")
)

// FlagStore persists flag records.
type FlagStore interface {
	FlagCounter
	Insert(ctx context.Context, flag *models.Flag) error
	GetByID(ctx context.Context, id string) (*models.Flag, error)
	Update(ctx context.Context, flag *models.Flag) error
	List(ctx context.Context, filter models.FlagFilter) ([]*models.Flag, error)
	// HasFlagForTuple reports whether a flag already exists for the exact
	// (orderID, itemID, createdByID) tuple.
	HasFlagForTuple(ctx context.Context, orderID, itemID, createdByID string) (bool, error)
}

// OrderGetter resolves the buyer/seller pair when a flag submission only
// names the order.
type OrderGetter interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
}

// maxFlagList caps list queries to keep payloads reasonable.
const maxFlagList = 200

// FlagOpResult pairs the persisted flag with the policy outcome. A policy
// evaluation failure never fails the flag operation; it is reported in
// PolicyWarning instead so callers can still see that enforcement lagged.
type FlagOpResult struct {
	Flag          *models.Flag  `json:"flag"`
	Policy        *PolicyResult `json:"policy,omitempty"`
	PolicyWarning string        `json:"policy_warning,omitempty"`
}

// FlagService owns the flag lifecycle: creation with identity derivation and
// duplicate checks, moderation status transitions, and the policy
// re-evaluation that follows every write.
type FlagService struct {
	flags  FlagStore
	orders OrderGetter
	policy *PolicyEvaluator
}

func NewFlagService(flags FlagStore, orders OrderGetter, policy *PolicyEvaluator) *FlagService {
	return &FlagService{
		flags:  flags,
		orders: orders,
		policy: policy,
	}
}

// CreateFlag validates and persists a new flag, then re-runs the lock policy
// for the flagged party.
func (s *FlagService) CreateFlag(ctx context.Context, req *models.CreateFlagRequest) (*FlagOpResult, error) {
	role := req.FlaggedUserRole
	if role == "" {
		role = models.RoleBuyer
	}

	flaggedID := req.FlaggedUserID
	createdByID := req.CreatedByUserID

	// Derive missing parties from the order. A failed lookup is not fatal;
	// a submission with explicit ids must still succeed.
	if req.OrderID != "" && (flaggedID == "" || createdByID == "") {
		order, err := s.orders.GetByID(ctx, req.OrderID)
		if err != nil {
			log.Printf("[CreateFlag] order lookup failed order=%s err=%v — proceeding without derived ids", req.OrderID, err)
		} else {
			accused, counterparty := order.BuyerID, order.SellerID
			if role == models.RoleSeller {
				accused, counterparty = order.SellerID, order.BuyerID
			}
			if flaggedID == "" {
				flaggedID = accused
			}
			if createdByID == "" {
				createdByID = counterparty
			}
		}
	}

	if strings.TrimSpace(req.Reason) == "" {
		return nil, ErrMissingReason
	}
	if req.OrderID != "" && req.ItemID == "" {
		return nil, ErrMissingItem
	}
	if flaggedID == "" {
		return nil, ErrMissingFlaggedUser
	}

	if req.OrderID != "" && req.ItemID != "" && createdByID != "" {
		exists, err := s.flags.HasFlagForTuple(ctx, req.OrderID, req.ItemID, createdByID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateFlag
		}
	}

	now := time.Now().UTC()
	flag := &models.Flag{
		ID:              uuid.New().String(),
		FlaggedUserID:   flaggedID,
		CreatedByUserID: createdByID,
		FlaggedUserRole: role,
		OrderID:         req.OrderID,
		ItemID:          req.ItemID,
		Reason:          strings.TrimSpace(req.Reason),
		Status:          models.FlagStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.flags.Insert(ctx, flag); err != nil {
		return nil, err
	}

	return s.withPolicy(ctx, flag), nil
}

// ListFlags is a read-only query, newest first, capped at 200.
func (s *FlagService) ListFlags(ctx context.Context, filter models.FlagFilter) ([]*models.Flag, error) {
	if filter.Limit <= 0 || filter.Limit > maxFlagList {
		filter.Limit = maxFlagList
	}
	return s.flags.List(ctx, filter)
}

// UpdateFlagStatus applies a moderation decision and re-runs the policy —
// a dismissal can drop the qualifying count, a re-opened flag can raise it.
func (s *FlagService) UpdateFlagStatus(ctx context.Context, flagID string, req *models.UpdateFlagStatusRequest) (*FlagOpResult, error) {
	flag, err := s.flags.GetByID(ctx, flagID)
	if err != nil {
		return nil, err
	}

	if req.Status != nil {
		flag.Status = *req.Status
	}
	if req.AdminNotes != nil {
		flag.AdminNotes = *req.AdminNotes
	}
	flag.UpdatedAt = time.Now().UTC()

	if err := s.flags.Update(ctx, flag); err != nil {
		return nil, err
	}

	return s.withPolicy(ctx, flag), nil
}

// withPolicy runs the evaluator for the flag's subject. Failures are
// swallowed: the moderation record matters more than the side-effecting lock
// update, and the next evaluation recomputes from scratch anyway.
func (s *FlagService) withPolicy(ctx context.Context, flag *models.Flag) *FlagOpResult {
	res := &FlagOpResult{Flag: flag}
	policy, err := s.policy.Evaluate(ctx, flag.FlaggedUserID, flag.FlaggedUserRole)
	if err != nil {
		log.Printf("[FlagService] policy evaluation failed user=%s role=%s err=%v", flag.FlaggedUserID, flag.FlaggedUserRole, err)
		res.PolicyWarning = "policy evaluation failed: " + err.Error()
		return res
	}
	res.Policy = policy
	return res
}
