package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shopbill/backend/internal/domain"
	"shopbill/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	onHoldByID      map[string]domain.OnHoldItem
	activeByID      map[string]domain.ActiveItem
	activeIDByCode  map[string]string
	salesByID       map[string]*domain.Sale
	usersByUsername map[string]domain.UserAccount
	billSeq         int
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "employee123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"employee", employeePwd, domain.RoleEmployee},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:     u.username,
			PasswordHash: string(hash),
			Role:         u.role,
			IsApproved:   true,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		onHoldByID:      make(map[string]domain.OnHoldItem),
		activeByID:      make(map[string]domain.ActiveItem),
		activeIDByCode:  make(map[string]string),
		salesByID:       make(map[string]*domain.Sale),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	items := []domain.ActiveItem{
		{UniqueCode: "20250101_090000_DEMO01", Name: "Cotton Shirt", Price: 499, Tags: []string{"clothing", "shirt"}, Brand: "Weaver", Quantity: 24, IsTaxable: true},
		{UniqueCode: "20250101_090100_DEMO02", Name: "Denim Jeans", Price: 1299, Tags: []string{"clothing", "jeans"}, Brand: "Weaver", Quantity: 12, IsTaxable: true},
		{UniqueCode: "20250101_090200_DEMO03", Name: "Canvas Tote", Price: 249, Tags: []string{"bags"}, Brand: "Carryon", Quantity: 4, IsTaxable: false},
	}
	for _, item := range items {
		item.ID = uuid.NewString()
		item.AddedBy = "admin"
		item.ApprovedBy = "admin"
		item.ApprovedAt = now
		item.CreatedAt = now
		s.activeByID[item.ID] = item
		s.activeIDByCode[item.UniqueCode] = item.ID
	}
	return s
}

func (s *Store) CreateOnHoldItem(_ context.Context, item domain.OnHoldItem) (*domain.OnHoldItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.UniqueCode == "" || item.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if item.Price < 0 || item.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if s.uniqueCodeTaken(item.UniqueCode) {
		return nil, store.ErrAlreadyExists
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = domain.OnHoldStatusPending
	}
	s.onHoldByID[item.ID] = cloneOnHold(item)
	created := cloneOnHold(item)
	return &created, nil
}

func (s *Store) ListOnHoldItems(_ context.Context) ([]domain.OnHoldItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.OnHoldItem, 0, len(s.onHoldByID))
	for _, item := range s.onHoldByID {
		items = append(items, cloneOnHold(item))
	}
	slices.SortFunc(items, func(a, b domain.OnHoldItem) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return items, nil
}

func (s *Store) GetOnHoldItemByID(_ context.Context, id string) (*domain.OnHoldItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.onHoldByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneOnHold(item)
	return &found, nil
}

func (s *Store) SetOnHoldStatus(_ context.Context, id string, status string) (*domain.OnHoldItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.onHoldByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	item.Status = status
	s.onHoldByID[id] = item
	updated := cloneOnHold(item)
	return &updated, nil
}

func (s *Store) DeleteOnHoldItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.onHoldByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.onHoldByID, id)
	return nil
}

func (s *Store) PromoteOnHoldItem(_ context.Context, id string, approvedBy string, approvedAt time.Time) (*domain.ActiveItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.onHoldByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	active := domain.ActiveItem{
		ID:         uuid.NewString(),
		UniqueCode: held.UniqueCode,
		Name:       held.Name,
		Price:      held.Price,
		Tags:       append([]string(nil), held.Tags...),
		Brand:      held.Brand,
		Quantity:   held.Quantity,
		QRCodeURL:  held.QRCodeURL,
		IsTaxable:  held.IsTaxable,
		AddedBy:    held.AddedBy,
		ApprovedBy: approvedBy,
		ApprovedAt: approvedAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	delete(s.onHoldByID, id)
	s.activeByID[active.ID] = active
	s.activeIDByCode[active.UniqueCode] = active.ID

	promoted := cloneActive(active)
	return &promoted, nil
}

func (s *Store) UniqueCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uniqueCodeTaken(code), nil
}

// uniqueCodeTaken checks both the on-hold and active sets. Callers hold s.mu.
func (s *Store) uniqueCodeTaken(code string) bool {
	if _, ok := s.activeIDByCode[code]; ok {
		return true
	}
	for _, item := range s.onHoldByID {
		if item.UniqueCode == code {
			return true
		}
	}
	return false
}

func (s *Store) ListActiveItems(_ context.Context, filter domain.ActiveItemFilter) ([]domain.ActiveItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.ActiveItem, 0, len(s.activeByID))
	for _, item := range s.activeByID {
		if !matchesFilter(item, filter) {
			continue
		}
		items = append(items, cloneActive(item))
	}
	slices.SortFunc(items, func(a, b domain.ActiveItem) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return items, nil
}

func matchesFilter(item domain.ActiveItem, filter domain.ActiveItemFilter) bool {
	if filter.Name != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(filter.Name)) {
		return false
	}
	if filter.Brand != "" && !strings.Contains(strings.ToLower(item.Brand), strings.ToLower(filter.Brand)) {
		return false
	}
	if filter.Tag != "" {
		found := false
		for _, tag := range item.Tags {
			if strings.EqualFold(tag, filter.Tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Store) GetActiveItemByID(_ context.Context, id string) (*domain.ActiveItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.activeByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneActive(item)
	return &found, nil
}

func (s *Store) GetActiveItemByCode(_ context.Context, code string) (*domain.ActiveItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.activeIDByCode[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := cloneActive(s.activeByID[id])
	return &found, nil
}

func (s *Store) GetActiveItemsByIDs(_ context.Context, ids []string) (map[string]domain.ActiveItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.ActiveItem, len(ids))
	for _, id := range ids {
		if item, exists := s.activeByID[id]; exists {
			result[id] = cloneActive(item)
		}
	}
	return result, nil
}

func (s *Store) UpdateActiveItem(_ context.Context, item domain.ActiveItem) (*domain.ActiveItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.activeByID[item.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if item.Name == "" || item.Price < 0 || item.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	// The unique code is immutable.
	item.UniqueCode = current.UniqueCode
	item.AddedBy = current.AddedBy
	item.ApprovedBy = current.ApprovedBy
	item.ApprovedAt = current.ApprovedAt
	item.CreatedAt = current.CreatedAt
	s.activeByID[item.ID] = cloneActive(item)

	updated := cloneActive(item)
	return &updated, nil
}

func (s *Store) DeleteActiveItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.activeByID[id]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.activeByID, id)
	delete(s.activeIDByCode, item.UniqueCode)
	return nil
}

func (s *Store) ListLowStockItems(_ context.Context, threshold int) ([]domain.ActiveItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.ActiveItem, 0)
	for _, item := range s.activeByID {
		if item.Quantity <= threshold {
			items = append(items, cloneActive(item))
		}
	}
	slices.SortFunc(items, func(a, b domain.ActiveItem) int {
		if a.Quantity == b.Quantity {
			return cmpString(a.Name, b.Name)
		}
		return a.Quantity - b.Quantity
	})
	return items, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	// Validate every line against current stock before mutating anything so a
	// failed sale leaves inventory untouched.
	requested := make(map[string]int, len(sale.Items))
	for _, line := range sale.Items {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		item, exists := s.activeByID[line.ItemID]
		if !exists {
			return nil, store.ErrNotFound
		}
		requested[line.ItemID] += line.Quantity
		if requested[line.ItemID] > item.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	for _, line := range sale.Items {
		item := s.activeByID[line.ItemID]
		item.Quantity -= line.Quantity
		if item.Quantity <= 0 {
			delete(s.activeByID, item.ID)
			delete(s.activeIDByCode, item.UniqueCode)
		} else {
			s.activeByID[item.ID] = item
		}
		for id, held := range s.onHoldByID {
			if held.UniqueCode == item.UniqueCode {
				delete(s.onHoldByID, id)
			}
		}
	}

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = time.Now().UTC()
	}
	s.billSeq++
	sale.BillNumber = billNumber(s.billSeq)

	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored
	return cloneSale(stored), nil
}

func (s *Store) ListSales(_ context.Context, from, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !from.IsZero() && sale.SaleDate.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.SaleDate.Before(to) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.SaleDate.Equal(b.SaleDate) {
			return cmpString(b.BillNumber, a.BillNumber)
		}
		if a.SaleDate.After(b.SaleDate) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) GetSalesAnalytics(_ context.Context, filter domain.SalesAnalyticsFilter) (domain.SalesAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	analytics := domain.SalesAnalytics{}
	for _, sale := range s.salesByID {
		saleDate := sale.SaleDate.UTC()
		if filter.Year > 0 && saleDate.Year() != filter.Year {
			continue
		}
		if filter.Month > 0 && int(saleDate.Month()) != filter.Month {
			continue
		}
		analytics.TotalBills++
		for _, line := range sale.Items {
			analytics.TotalSales += line.PriceAtSale
			analytics.TotalItemsSold += line.Quantity
		}
	}
	return analytics, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrAlreadyExists
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleEmployee
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) SetUserApproval(_ context.Context, username string, approved bool) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	user.IsApproved = approved
	s.usersByUsername[username] = user
	updated := user
	return &updated, nil
}

func billNumber(seq int) string {
	return fmt.Sprintf("BILL%03d", seq)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneOnHold(src domain.OnHoldItem) domain.OnHoldItem {
	dup := src
	dup.Tags = append([]string(nil), src.Tags...)
	return dup
}

func cloneActive(src domain.ActiveItem) domain.ActiveItem {
	dup := src
	dup.Tags = append([]string(nil), src.Tags...)
	return dup
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleLine, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}
