package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shopbill/backend/internal/domain"
	"shopbill/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateOnHoldItem(ctx context.Context, item domain.OnHoldItem) (*domain.OnHoldItem, error) {
	if item.UniqueCode == "" || item.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if item.Price < 0 || item.Quantity < 0 {
		return nil, store.ErrInvalidInput
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

	taken, err := s.UniqueCodeExists(ctx, item.UniqueCode)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, store.ErrAlreadyExists
	}

	tags, err := marshalTags(item.Tags)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO on_hold_items (
			id, unique_code, name, price, tags, brand, quantity, qr_code_url,
			is_taxable, added_by, approved_by, status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
	`, item.ID, item.UniqueCode, item.Name, item.Price, tags, item.Brand, item.Quantity,
		nullIfEmpty(item.QRCodeURL), item.IsTaxable, item.AddedBy, nullIfEmpty(item.ApprovedBy),
		item.Status, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) ListOnHoldItems(ctx context.Context) ([]domain.OnHoldItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unique_code, name, price, tags, brand, quantity, qr_code_url,
		       is_taxable, added_by, approved_by, status, created_at
		FROM on_hold_items
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OnHoldItem, 0, 32)
	for rows.Next() {
		item, err := scanOnHold(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetOnHoldItemByID(ctx context.Context, id string) (*domain.OnHoldItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, unique_code, name, price, tags, brand, quantity, qr_code_url,
		       is_taxable, added_by, approved_by, status, created_at
		FROM on_hold_items
		WHERE id = $1
	`, id)
	item, err := scanOnHold(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) SetOnHoldStatus(ctx context.Context, id string, status string) (*domain.OnHoldItem, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE on_hold_items
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOnHoldItemByID(ctx, id)
}

func (s *Store) DeleteOnHoldItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM on_hold_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) PromoteOnHoldItem(ctx context.Context, id string, approvedBy string, approvedAt time.Time) (*domain.ActiveItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, unique_code, name, price, tags, brand, quantity, qr_code_url,
		       is_taxable, added_by, approved_by, status, created_at
		FROM on_hold_items
		WHERE id = $1
		FOR UPDATE
	`, id)
	held, err := scanOnHold(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	active := domain.ActiveItem{
		ID:         uuid.NewString(),
		UniqueCode: held.UniqueCode,
		Name:       held.Name,
		Price:      held.Price,
		Tags:       held.Tags,
		Brand:      held.Brand,
		Quantity:   held.Quantity,
		QRCodeURL:  held.QRCodeURL,
		IsTaxable:  held.IsTaxable,
		AddedBy:    held.AddedBy,
		ApprovedBy: approvedBy,
		ApprovedAt: approvedAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	tags, err := marshalTags(active.Tags)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO active_items (
			id, unique_code, name, price, tags, brand, quantity, qr_code_url,
			is_taxable, added_by, approved_by, approved_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
	`, active.ID, active.UniqueCode, active.Name, active.Price, tags, active.Brand,
		active.Quantity, nullIfEmpty(active.QRCodeURL), active.IsTaxable, active.AddedBy,
		active.ApprovedBy, active.ApprovedAt, active.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM on_hold_items WHERE id = $1`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &active, nil
}

func (s *Store) UniqueCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM on_hold_items WHERE unique_code = $1
			UNION
			SELECT 1 FROM active_items WHERE unique_code = $1
		)
	`, code).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ListActiveItems(ctx context.Context, filter domain.ActiveItemFilter) ([]domain.ActiveItem, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.Name != "" {
		args = append(args, "%"+strings.ToLower(filter.Name)+"%")
		conditions = append(conditions, fmt.Sprintf("lower(name) LIKE $%d", len(args)))
	}
	if filter.Brand != "" {
		args = append(args, "%"+strings.ToLower(filter.Brand)+"%")
		conditions = append(conditions, fmt.Sprintf("lower(brand) LIKE $%d", len(args)))
	}
	if filter.Tag != "" {
		args = append(args, strings.ToLower(filter.Tag))
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(tags) AS t(tag) WHERE lower(t.tag) = $%d
		)`, len(args)))
	}
	query := `
		SELECT id, unique_code, name, price, tags, brand, quantity, qr_code_url,
		       is_taxable, added_by, approved_by, approved_at, created_at
		FROM active_items
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ActiveItem, 0, 64)
	for rows.Next() {
		item, err := scanActive(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetActiveItemByID(ctx context.Context, id string) (*domain.ActiveItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, unique_code, name, price, tags, brand, quantity, qr_code_url,
		       is_taxable, added_by, approved_by, approved_at, created_at
		FROM active_items
		WHERE id = $1
	`, id)
	item, err := scanActive(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetActiveItemByCode(ctx context.Context, code string) (*domain.ActiveItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, unique_code, name, price, tags, brand, quantity, qr_code_url,
		       is_taxable, added_by, approved_by, approved_at, created_at
		FROM active_items
		WHERE unique_code = $1
	`, code)
	item, err := scanActive(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetActiveItemsByIDs(ctx context.Context, ids []string) (map[string]domain.ActiveItem, error) {
	result := make(map[string]domain.ActiveItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unique_code, name, price, tags, brand, quantity, qr_code_url,
		       is_taxable, added_by, approved_by, approved_at, created_at
		FROM active_items
		WHERE id = ANY($1)
	`, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanActive(rows)
		if err != nil {
			return nil, err
		}
		result[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateActiveItem(ctx context.Context, item domain.ActiveItem) (*domain.ActiveItem, error) {
	if item.Name == "" || item.Price < 0 || item.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	tags, err := marshalTags(item.Tags)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE active_items
		SET name = $2, price = $3, tags = $4, brand = $5, quantity = $6,
		    is_taxable = $7, updated_at = now()
		WHERE id = $1
	`, item.ID, item.Name, item.Price, tags, item.Brand, item.Quantity, item.IsTaxable)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetActiveItemByID(ctx, item.ID)
}

func (s *Store) DeleteActiveItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM active_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListLowStockItems(ctx context.Context, threshold int) ([]domain.ActiveItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unique_code, name, price, tags, brand, quantity, qr_code_url,
		       is_taxable, added_by, approved_by, approved_at, created_at
		FROM active_items
		WHERE quantity <= $1
		ORDER BY quantity ASC, name ASC
	`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ActiveItem, 0, 16)
	for rows.Next() {
		item, err := scanActive(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := saleItemIDs(sale.Items)
	if len(ids) == 0 {
		return nil, store.ErrInvalidInput
	}

	stockRows, err := tx.QueryContext(ctx, `
		SELECT id, unique_code, quantity
		FROM active_items
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	type itemState struct {
		code string
		qty  int
	}
	stock := make(map[string]itemState, len(ids))
	for stockRows.Next() {
		var id, code string
		var qty int
		if err := stockRows.Scan(&id, &code, &qty); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		stock[id] = itemState{code: code, qty: qty}
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	// Validate every line before mutating so a failed sale deducts nothing.
	requested := make(map[string]int, len(ids))
	for _, line := range sale.Items {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		state, exists := stock[line.ItemID]
		if !exists {
			return nil, store.ErrNotFound
		}
		requested[line.ItemID] += line.Quantity
		if requested[line.ItemID] > state.qty {
			return nil, store.ErrInsufficientStock
		}
	}

	for itemID, qty := range requested {
		state := stock[itemID]
		remaining := state.qty - qty
		if remaining <= 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM active_items WHERE id = $1`, itemID); err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM on_hold_items WHERE unique_code = $1`, state.code); err != nil {
				return nil, err
			}
			continue
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE active_items
			SET quantity = $2, updated_at = now()
			WHERE id = $1
		`, itemID, remaining)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM on_hold_items WHERE unique_code = $1`, state.code); err != nil {
			return nil, err
		}
	}

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = time.Now().UTC()
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT nextval('bill_number_seq')`).Scan(&seq); err != nil {
		return nil, err
	}
	sale.BillNumber = fmt.Sprintf("BILL%03d", seq)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, bill_number, customer_name, customer_contact, discount_percent,
			discount_amount, sub_total, gst_amount, total_amount, billed_by, sale_date
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.BillNumber, sale.CustomerName, nullIfEmpty(sale.CustomerContact),
		sale.DiscountPercent, sale.DiscountAmount, sale.SubTotal, sale.GSTAmount,
		sale.TotalAmount, sale.BilledBy, sale.SaleDate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, err
	}

	for pos, line := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, position, item_id, unique_code, name, quantity, price_at_sale)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, pos, line.ItemID, line.UniqueCode, line.Name, line.Quantity, line.PriceAtSale)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if !from.IsZero() {
		args = append(args, from)
		conditions = append(conditions, fmt.Sprintf("sale_date >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conditions = append(conditions, fmt.Sprintf("sale_date < $%d", len(args)))
	}
	query := `
		SELECT id, bill_number, customer_name, customer_contact, discount_percent,
		       discount_amount, sub_total, gst_amount, total_amount, billed_by, sale_date
		FROM sales
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY sale_date DESC, bill_number DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := s.saleLinesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = lines[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bill_number, customer_name, customer_contact, discount_percent,
		       discount_amount, sub_total, gst_amount, total_amount, billed_by, sale_date
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lines, err := s.saleLinesByIDs(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = lines[sale.ID]
	return &sale, nil
}

func (s *Store) GetSalesAnalytics(ctx context.Context, filter domain.SalesAnalyticsFilter) (domain.SalesAnalytics, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.Year > 0 {
		args = append(args, filter.Year)
		conditions = append(conditions, fmt.Sprintf("EXTRACT(YEAR FROM s.sale_date) = $%d", len(args)))
	}
	if filter.Month > 0 {
		args = append(args, filter.Month)
		conditions = append(conditions, fmt.Sprintf("EXTRACT(MONTH FROM s.sale_date) = $%d", len(args)))
	}
	query := `
		SELECT COALESCE(SUM(i.price_at_sale), 0),
		       COALESCE(SUM(i.quantity), 0),
		       COUNT(DISTINCT s.id)
		FROM sales s
		LEFT JOIN sale_items i ON i.sale_id = s.id
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var analytics domain.SalesAnalytics
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&analytics.TotalSales, &analytics.TotalItemsSold, &analytics.TotalBills)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}
	return analytics, nil
}

func (s *Store) saleLinesByIDs(ctx context.Context, ids []string) (map[string][]domain.SaleLine, error) {
	result := make(map[string][]domain.SaleLine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, item_id, unique_code, name, quantity, price_at_sale
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := rows.Scan(&saleID, &line.ItemID, &line.UniqueCode, &line.Name, &line.Quantity, &line.PriceAtSale); err != nil {
			return nil, err
		}
		result[saleID] = append(result[saleID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleEmployee
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password_hash, role, is_approved, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.PasswordHash, user.Role, user.IsApproved, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, is_approved, created_at
		FROM app_users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).
		Scan(&user.Username, &user.PasswordHash, &user.Role, &user.IsApproved, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, is_approved, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.PasswordHash, &user.Role, &user.IsApproved, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) SetUserApproval(ctx context.Context, username string, approved bool) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET is_approved = $2, updated_at = now()
		WHERE username = $1
	`, username, approved)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUserByUsername(ctx, username)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOnHold(row rowScanner) (domain.OnHoldItem, error) {
	var item domain.OnHoldItem
	var tags []byte
	var qrCodeURL, approvedBy sql.NullString
	err := row.Scan(&item.ID, &item.UniqueCode, &item.Name, &item.Price, &tags, &item.Brand,
		&item.Quantity, &qrCodeURL, &item.IsTaxable, &item.AddedBy, &approvedBy,
		&item.Status, &item.CreatedAt)
	if err != nil {
		return domain.OnHoldItem{}, err
	}
	item.Tags, err = unmarshalTags(tags)
	if err != nil {
		return domain.OnHoldItem{}, err
	}
	item.QRCodeURL = qrCodeURL.String
	item.ApprovedBy = approvedBy.String
	item.CreatedAt = item.CreatedAt.UTC()
	return item, nil
}

func scanActive(row rowScanner) (domain.ActiveItem, error) {
	var item domain.ActiveItem
	var tags []byte
	var qrCodeURL sql.NullString
	err := row.Scan(&item.ID, &item.UniqueCode, &item.Name, &item.Price, &tags, &item.Brand,
		&item.Quantity, &qrCodeURL, &item.IsTaxable, &item.AddedBy, &item.ApprovedBy,
		&item.ApprovedAt, &item.CreatedAt)
	if err != nil {
		return domain.ActiveItem{}, err
	}
	item.Tags, err = unmarshalTags(tags)
	if err != nil {
		return domain.ActiveItem{}, err
	}
	item.QRCodeURL = qrCodeURL.String
	item.ApprovedAt = item.ApprovedAt.UTC()
	item.CreatedAt = item.CreatedAt.UTC()
	return item, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var contact sql.NullString
	err := row.Scan(&sale.ID, &sale.BillNumber, &sale.CustomerName, &contact,
		&sale.DiscountPercent, &sale.DiscountAmount, &sale.SubTotal, &sale.GSTAmount,
		&sale.TotalAmount, &sale.BilledBy, &sale.SaleDate)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.CustomerContact = contact.String
	sale.SaleDate = sale.SaleDate.UTC()
	return sale, nil
}

func marshalTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

func unmarshalTags(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func saleItemIDs(lines []domain.SaleLine) []string {
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.ItemID == "" {
			continue
		}
		set[line.ItemID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func uniqueIDs(ids []string) []string {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
