package domain

import "time"

type OnHoldItem struct {
	ID         string    `json:"id"`
	UniqueCode string    `json:"unique_code"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Tags       []string  `json:"tags"`
	Brand      string    `json:"brand"`
	Quantity   int       `json:"quantity"`
	QRCodeURL  string    `json:"qr_code_url,omitempty"`
	IsTaxable  bool      `json:"is_taxable"`
	AddedBy    string    `json:"added_by"`
	ApprovedBy string    `json:"approved_by,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type ActiveItem struct {
	ID         string    `json:"id"`
	UniqueCode string    `json:"unique_code"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Tags       []string  `json:"tags"`
	Brand      string    `json:"brand"`
	Quantity   int       `json:"quantity"`
	QRCodeURL  string    `json:"qr_code_url,omitempty"`
	IsTaxable  bool      `json:"is_taxable"`
	AddedBy    string    `json:"added_by"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type OnHoldCreateRequest struct {
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	Tags      []string `json:"tags"`
	Brand     string   `json:"brand"`
	Quantity  int      `json:"quantity"`
	IsTaxable bool     `json:"is_taxable"`
}

type ActiveItemUpdateRequest struct {
	Name      *string   `json:"name,omitempty"`
	Price     *float64  `json:"price,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	Brand     *string   `json:"brand,omitempty"`
	Quantity  *int      `json:"quantity,omitempty"`
	IsTaxable *bool     `json:"is_taxable,omitempty"`
}

type ActiveItemFilter struct {
	Name  string
	Tag   string
	Brand string
}

type SaleLine struct {
	ItemID      string  `json:"item_id"`
	UniqueCode  string  `json:"unique_code"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	PriceAtSale float64 `json:"price_at_sale"`
}

type Sale struct {
	ID              string     `json:"id"`
	BillNumber      string     `json:"bill_number"`
	CustomerName    string     `json:"customer_name"`
	CustomerContact string     `json:"customer_contact,omitempty"`
	Items           []SaleLine `json:"items"`
	DiscountPercent float64    `json:"discount_percent"`
	DiscountAmount  float64    `json:"discount_amount"`
	SubTotal        float64    `json:"sub_total"`
	GSTAmount       float64    `json:"gst_amount"`
	TotalAmount     float64    `json:"total_amount"`
	BilledBy        string     `json:"billed_by"`
	SaleDate        time.Time  `json:"sale_date"`
}

type SaleLineRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type SaleCreateRequest struct {
	CustomerName    string            `json:"customer_name"`
	CustomerContact string            `json:"customer_contact,omitempty"`
	Items           []SaleLineRequest `json:"items"`
	DiscountPercent float64           `json:"discount_percent"`
	DiscountAmount  float64           `json:"discount_amount"`
}

// SalesAnalyticsFilter narrows analytics to a calendar year, a month within
// a year, or a month across all years. Zero fields mean no constraint.
type SalesAnalyticsFilter struct {
	Year  int
	Month int
}

type SalesAnalytics struct {
	TotalSales     float64 `json:"total_sales"`
	TotalItemsSold int     `json:"total_items_sold"`
	TotalBills     int     `json:"total_bills"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	IsApproved  bool   `json:"is_approved"`
	ExpiresAt   string `json:"expires_at"`
}

type UserProfile struct {
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	IsApproved bool      `json:"is_approved"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username     string
	PasswordHash string
	Role         string
	IsApproved   bool
	CreatedAt    time.Time
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

const (
	OnHoldStatusPending  = "pending"
	OnHoldStatusRejected = "rejected"
)

const GSTRate = 0.18

const DefaultLowStockThreshold = 5
