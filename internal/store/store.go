package store

import (
	"context"
	"errors"
	"time"

	"shopbill/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
)

type Repository interface {
	CreateOnHoldItem(ctx context.Context, item domain.OnHoldItem) (*domain.OnHoldItem, error)
	ListOnHoldItems(ctx context.Context) ([]domain.OnHoldItem, error)
	GetOnHoldItemByID(ctx context.Context, id string) (*domain.OnHoldItem, error)
	SetOnHoldStatus(ctx context.Context, id string, status string) (*domain.OnHoldItem, error)
	DeleteOnHoldItem(ctx context.Context, id string) error
	// PromoteOnHoldItem copies the on-hold record into active inventory and
	// removes the on-hold record in a single step.
	PromoteOnHoldItem(ctx context.Context, id string, approvedBy string, approvedAt time.Time) (*domain.ActiveItem, error)
	UniqueCodeExists(ctx context.Context, code string) (bool, error)

	ListActiveItems(ctx context.Context, filter domain.ActiveItemFilter) ([]domain.ActiveItem, error)
	GetActiveItemByID(ctx context.Context, id string) (*domain.ActiveItem, error)
	GetActiveItemByCode(ctx context.Context, code string) (*domain.ActiveItem, error)
	GetActiveItemsByIDs(ctx context.Context, ids []string) (map[string]domain.ActiveItem, error)
	UpdateActiveItem(ctx context.Context, item domain.ActiveItem) (*domain.ActiveItem, error)
	DeleteActiveItem(ctx context.Context, id string) error
	ListLowStockItems(ctx context.Context, threshold int) ([]domain.ActiveItem, error)

	// CreateSale validates and deducts stock for every line, removes items
	// whose quantity reaches zero along with on-hold records sharing their
	// unique code, assigns the bill number, and persists the sale. The whole
	// operation either completes or leaves stock untouched.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, from, to time.Time) ([]domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	GetSalesAnalytics(ctx context.Context, filter domain.SalesAnalyticsFilter) (domain.SalesAnalytics, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	SetUserApproval(ctx context.Context, username string, approved bool) (*domain.UserAccount, error)
}
