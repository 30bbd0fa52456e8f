package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-orders/api/middleware"
	internalorders "github.com/angelmondragon/storefront-orders/internal/orders"
	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/pagination"
)

type stubOrdersService struct {
	orders      map[uuid.UUID]*models.Order
	lastParams  pagination.Params
	lastActor   internalorders.Actor
	lastStatus  enums.OrderStatus
	lastFilter  *enums.OrderStatus
	cancelCalls int
}

func newStub(orders ...*models.Order) *stubOrdersService {
	s := &stubOrdersService{orders: map[uuid.UUID]*models.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *stubOrdersService) Get(_ context.Context, id uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
	s.lastActor = actor
	order, ok := s.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	return order, nil
}

func (s *stubOrdersService) GetByNumber(ctx context.Context, number string, actor internalorders.Actor) (*models.Order, error) {
	for _, o := range s.orders {
		if o.OrderNumber == number {
			return s.Get(ctx, o.ID, actor)
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrdersService) ListMine(_ context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, int64, error) {
	s.lastParams = params
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (s *stubOrdersService) CountMine(_ context.Context, userID uuid.UUID) (int64, error) {
	_, total, err := s.ListMine(context.Background(), userID, pagination.Params{})
	return total, err
}

func (s *stubOrdersService) ListByStatus(_ context.Context, status enums.OrderStatus, params pagination.Params) ([]models.Order, int64, error) {
	s.lastParams = params
	s.lastFilter = &status
	var out []models.Order
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (s *stubOrdersService) Cancel(_ context.Context, id uuid.UUID, actor internalorders.Actor) (*models.Order, error) {
	s.cancelCalls++
	s.lastActor = actor
	order, ok := s.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !order.Status.Cancellable() {
		return nil, pkgerrors.InvalidTransition(string(order.Status), string(enums.OrderStatusCancelled))
	}
	order.Status = enums.OrderStatusCancelled
	return order, nil
}

func (s *stubOrdersService) UpdateStatus(_ context.Context, id uuid.UUID, next enums.OrderStatus, actor internalorders.Actor) (*models.Order, error) {
	s.lastStatus = next
	s.lastActor = actor
	order, ok := s.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	order.Status = next
	return order, nil
}

func (s *stubOrdersService) HasPurchased(context.Context, uuid.UUID, uuid.UUID) (internalorders.Purchase, error) {
	return internalorders.Purchase{Purchased: false, Orders: []internalorders.OrderSummary{}}, nil
}

func (s *stubOrdersService) ConfirmPayment(context.Context, uuid.UUID, string, time.Time) (*models.Order, error) {
	return nil, nil
}

func newRouter(svc internalorders.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/orders", List(svc, nil))
	r.Get("/orders/count", Count(svc, nil))
	r.Get("/orders/number/{orderNumber}", ByNumber(svc, nil))
	r.Get("/orders/{orderId}", Detail(svc, nil))
	r.Post("/orders/{orderId}/cancel", Cancel(svc, nil))
	r.Get("/purchases/{productId}", HasPurchased(svc, nil))
	r.Get("/admin/orders", AdminList(svc, nil))
	r.Patch("/admin/orders/{orderId}/status", AdminUpdateStatus(svc, nil))
	return r
}

func do(h http.Handler, method, path, body string, userID uuid.UUID, role enums.UserRole) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := middleware.WithUserID(req.Context(), userID)
	ctx = middleware.WithRole(ctx, string(role))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req.WithContext(ctx))
	return resp
}

func sampleOrder(userID uuid.UUID, status enums.OrderStatus) *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		UserID:      userID,
		OrderNumber: "ORD170000000000042",
		Status:      status,
		TotalAmount: decimal.RequireFromString("20.00"),
	}
}

func TestDetailOwnerAndForeignCustomer(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner, enums.OrderStatusPending)
	router := newRouter(newStub(order))

	resp := do(router, http.MethodGet, "/orders/"+order.ID.String(), "", owner, enums.UserRoleCustomer)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data internalorders.OrderView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID != order.ID || !envelope.Data.TotalAmount.Equal(order.TotalAmount) {
		t.Fatalf("unexpected view %+v", envelope.Data)
	}

	resp = do(router, http.MethodGet, "/orders/"+order.ID.String(), "", uuid.New(), enums.UserRoleCustomer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestDetailAdminSeesAnyOrder(t *testing.T) {
	order := sampleOrder(uuid.New(), enums.OrderStatusPending)
	stub := newStub(order)
	resp := do(newRouter(stub), http.MethodGet, "/orders/"+order.ID.String(), "", uuid.New(), enums.UserRoleAdmin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !stub.lastActor.IsAdmin() {
		t.Fatal("expected admin role forwarded from context")
	}
}

func TestByNumberNotFound(t *testing.T) {
	resp := do(newRouter(newStub()), http.MethodGet, "/orders/number/ORD0", "", uuid.New(), enums.UserRoleCustomer)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestListPassesPaging(t *testing.T) {
	owner := uuid.New()
	stub := newStub(sampleOrder(owner, enums.OrderStatusPending))
	resp := do(newRouter(stub), http.MethodGet, "/orders?page=1&size=3", "", owner, enums.UserRoleCustomer)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.lastParams.Page != 1 || stub.lastParams.Size != 3 {
		t.Fatalf("unexpected params %+v", stub.lastParams)
	}
	var envelope struct {
		Data pagination.Page[internalorders.OrderView] `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Total != 1 || envelope.Data.Size != 3 {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}
}

func TestCancelTwiceIsInvalidTransition(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner, enums.OrderStatusPending)
	router := newRouter(newStub(order))

	if resp := do(router, http.MethodPost, "/orders/"+order.ID.String()+"/cancel", "", owner, enums.UserRoleCustomer); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	resp := do(router, http.MethodPost, "/orders/"+order.ID.String()+"/cancel", "", owner, enums.UserRoleCustomer)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), string(pkgerrors.CodeInvalidTransition)) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestCancelForwardsCallerRole(t *testing.T) {
	owner := uuid.New()
	order := sampleOrder(owner, enums.OrderStatusPending)
	stub := newStub(order)

	resp := do(newRouter(stub), http.MethodPost, "/orders/"+order.ID.String()+"/cancel", "", owner, enums.UserRoleCustomer)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.lastActor.UserID != owner || stub.lastActor.Role != enums.UserRoleCustomer {
		t.Fatalf("unexpected actor %+v", stub.lastActor)
	}
}

func TestAdminListFiltersByStatus(t *testing.T) {
	shipped := sampleOrder(uuid.New(), enums.OrderStatusShipped)
	pending := sampleOrder(uuid.New(), enums.OrderStatusPending)
	stub := newStub(shipped, pending)
	router := newRouter(stub)

	resp := do(router, http.MethodGet, "/admin/orders?status=shipped&size=5", "", uuid.New(), enums.UserRoleAdmin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if stub.lastFilter == nil || *stub.lastFilter != enums.OrderStatusShipped || stub.lastParams.Size != 5 {
		t.Fatalf("unexpected filter %v params %+v", stub.lastFilter, stub.lastParams)
	}
	var envelope struct {
		Data pagination.Page[internalorders.OrderView] `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Total != 1 || len(envelope.Data.Items) != 1 || envelope.Data.Items[0].ID != shipped.ID {
		t.Fatalf("unexpected page %+v", envelope.Data)
	}

	resp = do(router, http.MethodGet, "/admin/orders", "", uuid.New(), enums.UserRoleAdmin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if stub.lastFilter == nil || *stub.lastFilter != "" {
		t.Fatalf("expected no status filter, got %v", stub.lastFilter)
	}
}

func TestAdminListRejectsUnknownStatus(t *testing.T) {
	stub := newStub()
	resp := do(newRouter(stub), http.MethodGet, "/admin/orders?status=LOST", "", uuid.New(), enums.UserRoleAdmin)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if stub.lastFilter != nil {
		t.Fatal("service should not be called for an unknown status")
	}
}

func TestAdminUpdateStatusParsesStatus(t *testing.T) {
	order := sampleOrder(uuid.New(), enums.OrderStatusConfirmed)
	stub := newStub(order)
	router := newRouter(stub)

	resp := do(router, http.MethodPatch, "/admin/orders/"+order.ID.String()+"/status", `{"status":"shipped"}`, uuid.New(), enums.UserRoleAdmin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if stub.lastStatus != enums.OrderStatusShipped {
		t.Fatalf("expected SHIPPED, got %s", stub.lastStatus)
	}

	resp = do(router, http.MethodPatch, "/admin/orders/"+order.ID.String()+"/status", `{"status":"LOST"}`, uuid.New(), enums.UserRoleAdmin)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestHasPurchasedRejectsBadProductID(t *testing.T) {
	resp := do(newRouter(newStub()), http.MethodGet, "/purchases/not-a-uuid", "", uuid.New(), enums.UserRoleCustomer)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
