package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

type addLineBody struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":"nope","quantity":0}`))
	var body addLineBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", pkgerrors.As(err).Details())
	}
	if details["product_id"] == "" || details["quantity"] == "" {
		t.Fatalf("expected both fields flagged, got %v", details)
	}
}

func TestOrderStatusTag(t *testing.T) {
	type statusBody struct {
		Status string `json:"status" validate:"required,order_status"`
	}
	if err := Struct(statusBody{Status: "shipped"}); err != nil {
		t.Fatalf("expected lowercase status to pass, got %v", err)
	}
	err := Struct(statusBody{Status: "LOST"})
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["status"] != "must be a known order status" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":1,"price":"0.01"}`))
	var body addLineBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPageParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders?page=2&size=5", nil)
	params, err := PageParams(req)
	if err != nil {
		t.Fatalf("PageParams: %v", err)
	}
	if params.Page != 2 || params.Size != 5 {
		t.Fatalf("unexpected params %+v", params)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders?size=1000", nil)
	if _, err := PageParams(req); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected out-of-range size rejected, got %v", err)
	}
}

func TestPathUUID(t *testing.T) {
	router := chi.NewRouter()
	var gotErr error
	router.Get("/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		_, gotErr = PathUUID(r, "orderId")
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil))
	if !pkgerrors.IsCode(gotErr, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", gotErr)
	}
}
