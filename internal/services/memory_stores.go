package services

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/trovia/backend/internal/models"
	"github.com/trovia/backend/internal/storage"
)

// In-memory store variants. Used as the dev-mode fallback when MONGO_URI is
// unset (snapshotted through a JSONStore) and as fixtures in tests (nil
// snapshot store).

type MemoryFlagStore struct {
	mu    sync.RWMutex
	flags map[string]*models.Flag
	snap  *storage.JSONStore
}

func NewMemoryFlagStore(snap *storage.JSONStore) (*MemoryFlagStore, error) {
	s := &MemoryFlagStore{
		flags: make(map[string]*models.Flag),
		snap:  snap,
	}
	if snap != nil {
		var loaded []*models.Flag
		if err := snap.Load(&loaded); err != nil {
			return nil, err
		}
		for _, f := range loaded {
			s.flags[f.ID] = f
		}
	}
	return s, nil
}

// persist is best-effort; a failed snapshot write never fails the operation.
func (s *MemoryFlagStore) persist() {
	if s.snap == nil {
		return
	}
	all := make([]*models.Flag, 0, len(s.flags))
	for _, f := range s.flags {
		all = append(all, f)
	}
	if err := s.snap.Save(all); err != nil {
		log.Printf("[MemoryFlagStore] snapshot failed: %v", err)
	}
}

func (s *MemoryFlagStore) Insert(ctx context.Context, flag *models.Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if flag.OrderID != "" && flag.ItemID != "" && flag.CreatedByUserID != "" {
		for _, f := range s.flags {
			if f.OrderID == flag.OrderID && f.ItemID == flag.ItemID && f.CreatedByUserID == flag.CreatedByUserID {
				return ErrDuplicateFlag
			}
		}
	}

	cp := *flag
	s.flags[flag.ID] = &cp
	s.persist()
	return nil
}

func (s *MemoryFlagStore) GetByID(ctx context.Context, id string) (*models.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, exists := s.flags[id]
	if !exists {
		return nil, ErrFlagNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryFlagStore) Update(ctx context.Context, flag *models.Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.flags[flag.ID]; !exists {
		return ErrFlagNotFound
	}
	cp := *flag
	s.flags[flag.ID] = &cp
	s.persist()
	return nil
}

func (s *MemoryFlagStore) List(ctx context.Context, filter models.FlagFilter) ([]*models.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Flag, 0)
	for _, f := range s.flags {
		if filter.FlaggedUserID != "" && f.FlaggedUserID != filter.FlaggedUserID {
			continue
		}
		if filter.CreatedByUserID != "" && f.CreatedByUserID != filter.CreatedByUserID {
			continue
		}
		if filter.FlaggedUserRole != "" && f.FlaggedUserRole != filter.FlaggedUserRole {
			continue
		}
		if filter.OrderID != "" && f.OrderID != filter.OrderID {
			continue
		}
		if filter.Status != "" && f.Status != filter.Status {
			continue
		}
		if filter.StoreID != "" && f.FlaggedUserID != filter.StoreID && f.CreatedByUserID != filter.StoreID {
			continue
		}
		cp := *f
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 || limit > maxFlagList {
		limit = maxFlagList
	}
	if int64(len(matched)) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryFlagStore) HasFlagForTuple(ctx context.Context, orderID, itemID, createdByID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.flags {
		if f.OrderID == orderID && f.ItemID == itemID && f.CreatedByUserID == createdByID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryFlagStore) CountQualifying(ctx context.Context, userID, role string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, f := range s.flags {
		if f.FlaggedUserID != userID || f.FlaggedUserRole != role {
			continue
		}
		if f.Status == models.FlagStatusDismissed {
			continue
		}
		if f.CreatedAt.Before(since) {
			continue
		}
		n++
	}
	return n, nil
}

// storedUser keeps the password hash, which models.User hides from JSON.
type storedUser struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"password_hash"`
	Name         string          `json:"name"`
	IsActive     bool            `json:"is_active"`
	FlagLock     models.FlagLock `json:"flag_lock"`
	CreatedAt    time.Time       `json:"created_at"`
}

type MemoryUserStore struct {
	mu      sync.RWMutex
	users   map[string]*models.User
	byEmail map[string]string
	snap    *storage.JSONStore
}

func NewMemoryUserStore(snap *storage.JSONStore) (*MemoryUserStore, error) {
	s := &MemoryUserStore{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]string),
		snap:    snap,
	}
	if snap != nil {
		var loaded []storedUser
		if err := snap.Load(&loaded); err != nil {
			return nil, err
		}
		for _, u := range loaded {
			s.users[u.ID] = &models.User{
				ID:           u.ID,
				Email:        u.Email,
				PasswordHash: u.PasswordHash,
				Name:         u.Name,
				IsActive:     u.IsActive,
				FlagLock:     u.FlagLock,
				CreatedAt:    u.CreatedAt,
			}
			s.byEmail[u.Email] = u.ID
		}
	}
	return s, nil
}

func (s *MemoryUserStore) persist() {
	if s.snap == nil {
		return
	}
	all := make([]storedUser, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, storedUser{
			ID:           u.ID,
			Email:        u.Email,
			PasswordHash: u.PasswordHash,
			Name:         u.Name,
			IsActive:     u.IsActive,
			FlagLock:     u.FlagLock,
			CreatedAt:    u.CreatedAt,
		})
	}
	if err := s.snap.Save(all); err != nil {
		log.Printf("[MemoryUserStore] snapshot failed: %v", err)
	}
}

func (s *MemoryUserStore) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[req.Email]; exists {
		return nil, ErrEmailExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		Name:         req.Name,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID
	s.persist()

	cp := *user
	return &cp, nil
}

func (s *MemoryUserStore) Login(ctx context.Context, req *models.LoginRequest) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, exists := s.byEmail[req.Email]
	if !exists {
		return nil, ErrUserNotFound
	}

	user := s.users[userID]
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidPassword
	}

	cp := *user
	return &cp, nil
}

func (s *MemoryUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryUserStore) SaveLockState(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.users[user.ID]
	if !exists {
		return ErrUserNotFound
	}
	stored.IsActive = user.IsActive
	stored.FlagLock = user.FlagLock
	s.persist()
	return nil
}

func (s *MemoryUserStore) ListLocked(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locked := make([]*models.User, 0)
	for _, u := range s.users {
		if u.FlagLock.Locked {
			cp := *u
			locked = append(locked, &cp)
		}
	}
	return locked, nil
}

type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
	snap   *storage.JSONStore
}

func NewMemoryOrderStore(snap *storage.JSONStore) (*MemoryOrderStore, error) {
	s := &MemoryOrderStore{
		orders: make(map[string]*models.Order),
		snap:   snap,
	}
	if snap != nil {
		var loaded []*models.Order
		if err := snap.Load(&loaded); err != nil {
			return nil, err
		}
		for _, o := range loaded {
			s.orders[o.ID] = o
		}
	}
	return s, nil
}

func (s *MemoryOrderStore) persist() {
	if s.snap == nil {
		return
	}
	all := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		all = append(all, o)
	}
	if err := s.snap.Save(all); err != nil {
		log.Printf("[MemoryOrderStore] snapshot failed: %v", err)
	}
}

func (s *MemoryOrderStore) Create(ctx context.Context, buyerID string, req *models.CreateOrderRequest) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	order := &models.Order{
		ID:       uuid.New().String(),
		BuyerID:  buyerID,
		SellerID: req.SellerID,
		Status:   models.OrderStatusPending,
	}
	for _, it := range req.Items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:       uuid.New().String(),
			Name:     it.Name,
			Price:    it.Price,
			Quantity: qty,
		})
	}
	order.Total = order.ComputeTotal()
	order.CreatedAt = now
	order.UpdatedAt = now

	s.orders[order.ID] = order
	s.persist()

	cp := *order
	return &cp, nil
}

func (s *MemoryOrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *MemoryOrderStore) UpdateStatus(ctx context.Context, userID, orderID, status string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, ErrOrderNotFound
	}
	if order.BuyerID != userID && order.SellerID != userID {
		return nil, ErrNotParticipant
	}
	if !models.CanTransitionOrder(order.Status, status) {
		return nil, ErrInvalidTransition
	}

	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	s.persist()

	cp := *order
	return &cp, nil
}
