package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopbill/backend/internal/domain"
	"shopbill/backend/internal/service"
	"shopbill/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil)
	auth := NewAuthManager("test-secret-key-with-enough-length!", time.Hour, repo, "", "")

	return New(svc, auth, "*", nil)
}

func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = fmt.Sprintf("198.51.100.%d:4000", len(username))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleRegister_DuplicateUsername(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	first := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Username: "freshuser",
		Password: "pass1234",
	})
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", first.Code, first.Body.String())
	}

	second := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Username: "freshuser",
		Password: "pass9999",
	})
	if second.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate username, got %d", second.Code)
	}
}

func TestHandleRegister_RejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username":   "fieldtest",
		"password":   "pass1234",
		"is_admin":   true,
		"extra_flag": 1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", rec.Code)
	}
}

func TestPendingAdminLoginAfterApproval(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Username: "secondadmin",
		Password: "pass1234",
		Role:     domain.RoleAdmin,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}

	denied := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "secondadmin",
		Password: "pass1234",
	})
	if denied.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for pending admin, got %d", denied.Code)
	}

	adminToken := loginAs(t, handler, "admin", "admin123")
	approve := doJSON(t, handler, http.MethodPut, "/api/v1/auth/users/secondadmin/approve", adminToken, nil)
	if approve.Code != http.StatusOK {
		t.Fatalf("approve failed: %d %s", approve.Code, approve.Body.String())
	}

	if token := loginAs(t, handler, "secondadmin", "pass1234"); token == "" {
		t.Fatalf("expected approved admin to log in")
	}
}

func TestApprovalEndpointCanRevokeAccount(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	adminToken := loginAs(t, handler, "admin", "admin123")
	revoke := doJSON(t, handler, http.MethodPut, "/api/v1/auth/users/employee/approve", adminToken, map[string]any{
		"is_approved": false,
	})
	if revoke.Code != http.StatusOK {
		t.Fatalf("revoke failed: %d %s", revoke.Code, revoke.Body.String())
	}

	denied := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "employee",
		Password: "employee123",
	})
	if denied.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked account, got %d", denied.Code)
	}
}

func TestListUsersRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	employeeToken := loginAs(t, handler, "employee", "employee123")
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/auth/users", employeeToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", rec.Code)
	}

	adminToken := loginAs(t, handler, "admin", "admin123")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/auth/users", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleActive_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/active", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleActive_ListAndFilter(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "employee", "employee123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/active", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Items []domain.ActiveItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Items) != 3 {
		t.Fatalf("expected 3 seeded items, got %d", len(body.Items))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/active?tag=bags", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("filter request failed: %d", rec.Code)
	}
	body.Items = nil
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode filtered body: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Name != "Canvas Tote" {
		t.Fatalf("expected only the tote for tag=bags, got %+v", body.Items)
	}
}

func TestOnHoldApprovalWorkflowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	employeeToken := loginAs(t, handler, "employee", "employee123")
	adminToken := loginAs(t, handler, "admin", "admin123")

	created := doJSON(t, handler, http.MethodPost, "/api/v1/onhold", employeeToken, domain.OnHoldCreateRequest{
		Name:      "Wool Socks",
		Price:     120,
		Quantity:  30,
		Tags:      []string{"clothing"},
		IsTaxable: true,
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create on-hold failed: %d %s", created.Code, created.Body.String())
	}
	var createdBody struct {
		Item domain.OnHoldItem `json:"item"`
	}
	if err := json.NewDecoder(created.Body).Decode(&createdBody); err != nil {
		t.Fatalf("decode created item: %v", err)
	}

	// Review is an admin capability.
	forbidden := doJSON(t, handler, http.MethodPut, "/api/v1/onhold/"+createdBody.Item.ID+"/approve", employeeToken, nil)
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee approval, got %d", forbidden.Code)
	}

	approved := doJSON(t, handler, http.MethodPut, "/api/v1/onhold/"+createdBody.Item.ID+"/approve", adminToken, nil)
	if approved.Code != http.StatusOK {
		t.Fatalf("admin approval failed: %d %s", approved.Code, approved.Body.String())
	}

	lookup := doJSON(t, handler, http.MethodGet, "/api/v1/active/"+createdBody.Item.UniqueCode, employeeToken, nil)
	if lookup.Code != http.StatusOK {
		t.Fatalf("expected promoted item to resolve by code, got %d", lookup.Code)
	}
}

func TestRecordSaleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	employeeToken := loginAs(t, handler, "employee", "employee123")

	list := doJSON(t, handler, http.MethodGet, "/api/v1/active?name=canvas", employeeToken, nil)
	var listBody struct {
		Items []domain.ActiveItem `json:"items"`
	}
	if err := json.NewDecoder(list.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listBody.Items) != 1 {
		t.Fatalf("expected the seeded tote, got %d items", len(listBody.Items))
	}
	tote := listBody.Items[0]

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", employeeToken, domain.SaleCreateRequest{
		CustomerName:   "Walk-in",
		DiscountAmount: 49,
		Items: []domain.SaleLineRequest{
			{ItemID: tote.ID, Quantity: 2},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record sale failed: %d %s", rec.Code, rec.Body.String())
	}
	var saleBody struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&saleBody); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if saleBody.Sale.SubTotal != tote.Price*2 {
		t.Fatalf("expected sub total %v, got %v", tote.Price*2, saleBody.Sale.SubTotal)
	}
	if saleBody.Sale.TotalAmount != tote.Price*2-49 {
		t.Fatalf("expected total %v, got %v", tote.Price*2-49, saleBody.Sale.TotalAmount)
	}

	byID := doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+saleBody.Sale.ID, employeeToken, nil)
	if byID.Code != http.StatusOK {
		t.Fatalf("get sale by id failed: %d", byID.Code)
	}
}

func TestRecordSaleOversellReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "employee", "employee123")

	list := doJSON(t, handler, http.MethodGet, "/api/v1/active?name=canvas", token, nil)
	var listBody struct {
		Items []domain.ActiveItem `json:"items"`
	}
	if err := json.NewDecoder(list.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	tote := listBody.Items[0]

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, domain.SaleCreateRequest{
		CustomerName: "Walk-in",
		Items: []domain.SaleLineRequest{
			{ItemID: tote.ID, Quantity: tote.Quantity + 1},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for oversell, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestAnalyticsAndLowStockAreAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	employeeToken := loginAs(t, handler, "employee", "employee123")
	adminToken := loginAs(t, handler, "admin", "admin123")

	for _, path := range []string{"/api/v1/sales/analytics", "/api/v1/sales/lowstock"} {
		rec := doJSON(t, handler, http.MethodGet, path, employeeToken, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 for employee on %s, got %d", path, rec.Code)
		}
		rec = doJSON(t, handler, http.MethodGet, path, adminToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for admin on %s, got %d (body: %s)", path, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/lowstock", adminToken, nil)
	var body struct {
		Items []domain.ActiveItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode lowstock body: %v", err)
	}
	// The seeded tote sits at quantity 4, under the default threshold of 5.
	if len(body.Items) != 1 || body.Items[0].Name != "Canvas Tote" {
		t.Fatalf("expected the tote to be low on stock, got %+v", body.Items)
	}
}

func TestActiveItemUpdateIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	employeeToken := loginAs(t, handler, "employee", "employee123")
	adminToken := loginAs(t, handler, "admin", "admin123")

	list := doJSON(t, handler, http.MethodGet, "/api/v1/active?name=denim", adminToken, nil)
	var listBody struct {
		Items []domain.ActiveItem `json:"items"`
	}
	if err := json.NewDecoder(list.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	jeans := listBody.Items[0]

	update := map[string]any{"price": 1399}
	rec := doJSON(t, handler, http.MethodPut, "/api/v1/active/"+jeans.ID, employeeToken, update)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for employee update, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/active/"+jeans.ID, adminToken, update)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin update failed: %d %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		Item domain.ActiveItem `json:"item"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("decode updated item: %v", err)
	}
	if updated.Item.Price != 1399 {
		t.Fatalf("expected updated price 1399, got %v", updated.Item.Price)
	}
}

func TestGetUnknownSaleReturns404(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "employee", "employee123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/no-such-sale", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
