package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopbill/backend/internal/cache"
	"shopbill/backend/internal/domain"
	"shopbill/backend/internal/logger"
	"shopbill/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// QRProvider generates a scannable label for an item code. The real provider
// renders the image and uploads it somewhere reachable; the noop provider is
// used when no uploader is configured.
type QRProvider interface {
	GenerateQRCode(ctx context.Context, uniqueCode string) (string, error)
}

type NoopQRProvider struct{}

func (NoopQRProvider) GenerateQRCode(_ context.Context, _ string) (string, error) {
	return "", nil
}

const analyticsCacheTTL = time.Minute

type Service struct {
	repo    store.Repository
	reports cache.ReportCache
	qr      QRProvider
}

func New(repo store.Repository, reports cache.ReportCache, qr QRProvider) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if qr == nil {
		qr = NoopQRProvider{}
	}
	return &Service{repo: repo, reports: reports, qr: qr}
}

func (s *Service) CreateOnHoldItem(ctx context.Context, req domain.OnHoldCreateRequest) (domain.OnHoldItem, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.OnHoldItem{}, errors.New("authenticated actor required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Brand = strings.TrimSpace(req.Brand)
	if req.Name == "" {
		return domain.OnHoldItem{}, store.ErrInvalidInput
	}
	if req.Price < 0 || req.Quantity < 0 {
		return domain.OnHoldItem{}, store.ErrInvalidInput
	}

	code, err := s.newUniqueCode(ctx)
	if err != nil {
		return domain.OnHoldItem{}, err
	}

	qrURL, err := s.qr.GenerateQRCode(ctx, code)
	if err != nil {
		// The item is still usable without a label; sell by code lookup.
		logger.L().Warn("qr code generation failed",
			zap.String("unique_code", code), zap.Error(err))
		qrURL = ""
	}

	item := domain.OnHoldItem{
		UniqueCode: code,
		Name:       req.Name,
		Price:      req.Price,
		Tags:       normalizeTags(req.Tags),
		Brand:      req.Brand,
		Quantity:   req.Quantity,
		QRCodeURL:  qrURL,
		IsTaxable:  req.IsTaxable,
		AddedBy:    actor.Username,
		Status:     domain.OnHoldStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	created, err := s.repo.CreateOnHoldItem(ctx, item)
	if err != nil {
		return domain.OnHoldItem{}, err
	}
	return *created, nil
}

func (s *Service) ListOnHoldItems(ctx context.Context) ([]domain.OnHoldItem, error) {
	return s.repo.ListOnHoldItems(ctx)
}

func (s *Service) ApproveOnHoldItem(ctx context.Context, id string) (domain.ActiveItem, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.ActiveItem{}, errors.New("authenticated actor required")
	}

	promoted, err := s.repo.PromoteOnHoldItem(ctx, id, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.ActiveItem{}, err
	}
	return *promoted, nil
}

func (s *Service) RejectOnHoldItem(ctx context.Context, id string) (domain.OnHoldItem, error) {
	rejected, err := s.repo.SetOnHoldStatus(ctx, id, domain.OnHoldStatusRejected)
	if err != nil {
		return domain.OnHoldItem{}, err
	}
	return *rejected, nil
}

func (s *Service) DeleteOnHoldItem(ctx context.Context, id string) error {
	return s.repo.DeleteOnHoldItem(ctx, id)
}

func (s *Service) ListActiveItems(ctx context.Context, filter domain.ActiveItemFilter) ([]domain.ActiveItem, error) {
	return s.repo.ListActiveItems(ctx, filter)
}

func (s *Service) GetActiveItemByCode(ctx context.Context, code string) (domain.ActiveItem, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.ActiveItem{}, store.ErrInvalidInput
	}
	item, err := s.repo.GetActiveItemByCode(ctx, code)
	if err != nil {
		return domain.ActiveItem{}, err
	}
	return *item, nil
}

func (s *Service) UpdateActiveItem(ctx context.Context, id string, req domain.ActiveItemUpdateRequest) (domain.ActiveItem, error) {
	existing, err := s.repo.GetActiveItemByID(ctx, id)
	if err != nil {
		return domain.ActiveItem{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.ActiveItem{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.ActiveItem{}, store.ErrInvalidInput
		}
		updated.Price = *req.Price
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.ActiveItem{}, store.ErrInvalidInput
		}
		updated.Quantity = *req.Quantity
	}
	if req.Tags != nil {
		updated.Tags = normalizeTags(*req.Tags)
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.IsTaxable != nil {
		updated.IsTaxable = *req.IsTaxable
	}

	saved, err := s.repo.UpdateActiveItem(ctx, updated)
	if err != nil {
		return domain.ActiveItem{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteActiveItem(ctx context.Context, id string) error {
	return s.repo.DeleteActiveItem(ctx, id)
}

// RecordSale resolves every cart line against active inventory, captures the
// price at the moment of sale, and computes the bill. GST applies per taxable
// line at the fixed rate; the discount amount is taken as supplied by the
// caller rather than recomputed from the percentage. Stock deduction and sale
// persistence happen atomically in the store.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, errors.New("authenticated actor required")
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if req.DiscountAmount < 0 || req.DiscountPercent < 0 || req.DiscountPercent > 100 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	ids := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity < 1 || strings.TrimSpace(line.ItemID) == "" {
			return domain.Sale{}, store.ErrInvalidInput
		}
		ids = append(ids, line.ItemID)
	}

	items, err := s.repo.GetActiveItemsByIDs(ctx, ids)
	if err != nil {
		return domain.Sale{}, err
	}

	subTotal := 0.0
	gstAmount := 0.0
	lines := make([]domain.SaleLine, 0, len(req.Items))
	requested := make(map[string]int, len(req.Items))
	for _, line := range req.Items {
		item, exists := items[line.ItemID]
		if !exists {
			return domain.Sale{}, store.ErrNotFound
		}
		requested[line.ItemID] += line.Quantity
		if requested[line.ItemID] > item.Quantity {
			return domain.Sale{}, store.ErrInsufficientStock
		}

		lineTotal := item.Price * float64(line.Quantity)
		subTotal += lineTotal
		if item.IsTaxable {
			gstAmount += lineTotal * domain.GSTRate
		}
		lines = append(lines, domain.SaleLine{
			ItemID:      item.ID,
			UniqueCode:  item.UniqueCode,
			Name:        item.Name,
			Quantity:    line.Quantity,
			PriceAtSale: item.Price,
		})
	}

	sale := domain.Sale{
		CustomerName:    req.CustomerName,
		CustomerContact: strings.TrimSpace(req.CustomerContact),
		Items:           lines,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  req.DiscountAmount,
		SubTotal:        subTotal,
		GSTAmount:       gstAmount,
		TotalAmount:     subTotal - req.DiscountAmount + gstAmount,
		BilledBy:        actor.Username,
		SaleDate:        time.Now().UTC(),
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	if err := s.reports.Invalidate(ctx); err != nil {
		logger.L().Warn("report cache invalidation failed", zap.Error(err))
	}

	logger.L().Info("sale recorded",
		zap.String("bill_number", created.BillNumber),
		zap.String("billed_by", created.BilledBy),
		zap.Float64("total_amount", created.TotalAmount),
		zap.Int("line_count", len(created.Items)))

	return *created, nil
}

func (s *Service) ListSales(ctx context.Context, date string) ([]domain.Sale, error) {
	var from, to time.Time
	if strings.TrimSpace(date) != "" {
		day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), time.UTC)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = day
		to = day.AddDate(0, 0, 1)
	}
	return s.repo.ListSales(ctx, from, to)
}

func (s *Service) GetSaleByID(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// Analytics aggregates the sales history. Year and month are independent
// filters: month without year matches that calendar month across all years.
// Results are cached briefly since dashboards poll this.
func (s *Service) Analytics(ctx context.Context, year int, month int) (domain.SalesAnalytics, error) {
	if year < 0 || month < 0 || month > 12 {
		return domain.SalesAnalytics{}, store.ErrInvalidInput
	}

	key := fmt.Sprintf("%d-%d", year, month)
	if cached, ok, err := s.reports.GetAnalytics(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		logger.L().Warn("analytics cache read failed", zap.Error(err))
	}

	analytics, err := s.repo.GetSalesAnalytics(ctx, domain.SalesAnalyticsFilter{Year: year, Month: month})
	if err != nil {
		return domain.SalesAnalytics{}, err
	}

	if err := s.reports.SetAnalytics(ctx, key, &analytics, analyticsCacheTTL); err != nil {
		logger.L().Warn("analytics cache write failed", zap.Error(err))
	}
	return analytics, nil
}

func (s *Service) LowStockItems(ctx context.Context, threshold int) ([]domain.ActiveItem, error) {
	if threshold < 0 {
		return nil, store.ErrInvalidInput
	}
	if threshold == 0 {
		threshold = domain.DefaultLowStockThreshold
	}
	return s.repo.ListLowStockItems(ctx, threshold)
}

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newUniqueCode builds a timestamped code with a random suffix and retries on
// the rare collision.
func (s *Service) newUniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		suffix := make([]byte, 6)
		if _, err := rand.Read(suffix); err != nil {
			return "", err
		}
		for i := range suffix {
			suffix[i] = codeAlphabet[int(suffix[i])%len(codeAlphabet)]
		}
		code := time.Now().UTC().Format("20060102_150405") + "_" + string(suffix)

		taken, err := s.repo.UniqueCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.New("could not generate unique item code")
}

func normalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		normalized = append(normalized, tag)
	}
	return normalized
}
