package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-orders/api/controllers"
	"github.com/angelmondragon/storefront-orders/internal/auth"
	"github.com/angelmondragon/storefront-orders/internal/cart"
	"github.com/angelmondragon/storefront-orders/internal/orders"
	product "github.com/angelmondragon/storefront-orders/internal/products"
	pkgAuth "github.com/angelmondragon/storefront-orders/pkg/auth"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/pagination"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubUsers map[uuid.UUID]enums.UserRole

func (s stubUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	role, ok := s[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return &models.User{ID: id, Role: role}, nil
}

type stubCart struct{ cart.Service }

func (stubCart) Summary(context.Context, uuid.UUID) (*cart.Summary, error) {
	summary := cart.Summarize(nil)
	return &summary, nil
}

type stubOrders struct{ orders.Service }

func (stubOrders) ListMine(context.Context, uuid.UUID, pagination.Params) ([]models.Order, int64, error) {
	return nil, 0, nil
}

func (stubOrders) ListByStatus(context.Context, enums.OrderStatus, pagination.Params) ([]models.Order, int64, error) {
	return nil, 0, nil
}

func (stubOrders) UpdateStatus(_ context.Context, id uuid.UUID, next enums.OrderStatus, _ orders.Actor) (*models.Order, error) {
	return &models.Order{ID: id, Status: next}, nil
}

type stubProducts struct{}

func (stubProducts) Restock(_ context.Context, id uuid.UUID, qty int) (product.Snapshot, error) {
	return product.Snapshot{ID: id, Stock: qty}, nil
}

type stubAuth struct{ auth.Service }

func (stubAuth) Login(context.Context, auth.LoginRequest) (*auth.TokenResponse, error) {
	return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}

var routerJWT = config.JWTConfig{Secret: "router-secret", Issuer: "storefront-test", ExpirationMinutes: 15}

func testRouter(t *testing.T, users stubUsers, pingErr error) http.Handler {
	t.Helper()
	cfg := &config.Config{JWT: routerJWT}
	cfg.App.Env = "test"
	return NewRouter(Deps{
		Config:   cfg,
		Pingers:  map[string]controllers.Pinger{"db": stubPinger{err: pingErr}},
		Sessions: stubSessions{},
		Users:    users,
		Gatherer: prometheus.NewRegistry(),
		Auth:     stubAuth{},
		Cart:     stubCart{},
		Orders:   stubOrders{},
		Products: stubProducts{},
	})
}

func bearer(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(routerJWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, JTI: uuid.NewString()})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return "Bearer " + token
}

func call(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	router := testRouter(t, stubUsers{}, nil)
	if resp := call(router, http.MethodGet, "/health/live", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", resp.Code)
	}
	if resp := call(router, http.MethodGet, "/health/ready", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", resp.Code)
	}
	if resp := call(router, http.MethodGet, "/metrics", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.Code)
	}

	down := testRouter(t, stubUsers{}, errors.New("db down"))
	if resp := call(down, http.MethodGet, "/health/ready", "", ""); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with failing db: expected 503 got %d", resp.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := testRouter(t, stubUsers{}, nil)
	for _, path := range []string{"/api/v1/cart", "/api/v1/orders", "/api/v1/purchases/" + uuid.NewString()} {
		if resp := call(router, http.MethodGet, path, "", ""); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestCustomerRoutes(t *testing.T) {
	customer := uuid.New()
	router := testRouter(t, stubUsers{customer: enums.UserRoleCustomer}, nil)
	token := bearer(t, customer)

	if resp := call(router, http.MethodGet, "/api/v1/cart", token, ""); resp.Code != http.StatusOK {
		t.Fatalf("cart: expected 200 got %d", resp.Code)
	}
	if resp := call(router, http.MethodGet, "/api/v1/orders?page=0&size=5", token, ""); resp.Code != http.StatusOK {
		t.Fatalf("orders: expected 200 got %d", resp.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	customer, admin := uuid.New(), uuid.New()
	router := testRouter(t, stubUsers{customer: enums.UserRoleCustomer, admin: enums.UserRoleAdmin}, nil)
	path := "/api/v1/admin/orders/" + uuid.NewString() + "/status"

	if resp := call(router, http.MethodPatch, path, bearer(t, customer), `{"status":"SHIPPED"}`); resp.Code != http.StatusForbidden {
		t.Fatalf("customer: expected 403 got %d", resp.Code)
	}
	if resp := call(router, http.MethodPatch, path, bearer(t, admin), `{"status":"SHIPPED"}`); resp.Code != http.StatusOK {
		t.Fatalf("admin: expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if resp := call(router, http.MethodGet, "/api/v1/admin/orders?status=PENDING", bearer(t, customer), ""); resp.Code != http.StatusForbidden {
		t.Fatalf("customer listing all orders: expected 403 got %d", resp.Code)
	}
	if resp := call(router, http.MethodGet, "/api/v1/admin/orders?status=PENDING", bearer(t, admin), ""); resp.Code != http.StatusOK {
		t.Fatalf("admin listing all orders: expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	restock := "/api/v1/admin/products/" + uuid.NewString() + "/restock"
	if resp := call(router, http.MethodPost, restock, bearer(t, admin), `{"quantity":4}`); resp.Code != http.StatusOK {
		t.Fatalf("restock: expected 200 got %d", resp.Code)
	}
}

func TestDeletedUserTokenIsRejected(t *testing.T) {
	router := testRouter(t, stubUsers{}, nil)
	if resp := call(router, http.MethodGet, "/api/v1/cart", bearer(t, uuid.New()), ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestLoginIsPublic(t *testing.T) {
	router := testRouter(t, stubUsers{}, nil)
	resp := call(router, http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@example.com","password":"wrong-password"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 from service, got %d", resp.Code)
	}
}
