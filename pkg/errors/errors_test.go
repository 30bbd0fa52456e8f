package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeEmptyCart, status: http.StatusUnprocessableEntity, publicMsg: "cart is empty"},
		{code: CodeInvalidTransition, status: http.StatusUnprocessableEntity, publicMsg: "status transition not allowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestInsufficientStockNamesProduct(t *testing.T) {
	productID := uuid.New()
	err := InsufficientStock(productID)
	details, ok := err.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected string map details, got %T", err.Details())
	}
	if details["product_id"] != productID.String() {
		t.Fatalf("expected product id %s got %s", productID, details["product_id"])
	}
}

func TestInvalidTransitionDetails(t *testing.T) {
	err := InvalidTransition("CANCELLED", "CANCELLED")
	if err.Code() != CodeInvalidTransition {
		t.Fatalf("unexpected code %s", err.Code())
	}
	details := err.Details().(map[string]string)
	if details["from"] != "CANCELLED" || details["to"] != "CANCELLED" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestIsCodeFollowsWrapping(t *testing.T) {
	err := fmt.Errorf("checkout: %w", EmptyCart())
	if !IsCode(err, CodeEmptyCart) {
		t.Fatalf("expected empty cart code through fmt wrapping")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("unexpected match on not found")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "load order")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: load order" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
	if got := Dump(wrapped); len(got.Chain) != 2 || got.Code != CodeDependency {
		t.Fatalf("unexpected dump %+v", got)
	}
}

func TestDumpCarriesDetailsAndRetryable(t *testing.T) {
	productID := uuid.New()
	dump := Dump(fmt.Errorf("checkout: %w", InsufficientStock(productID)))
	if dump.Code != CodeInsufficientStock {
		t.Fatalf("unexpected code %s", dump.Code)
	}
	details, ok := dump.Details.(map[string]string)
	if !ok || details["product_id"] != productID.String() {
		t.Fatalf("unexpected details %#v", dump.Details)
	}
	if dump.PG != nil {
		t.Fatalf("expected no postgres fields, got %+v", dump.PG)
	}

	if !Dump(Wrap(CodeDependency, stdErrors.New("db down"), "load")).Retryable {
		t.Fatal("dependency errors should be retryable")
	}
}

func TestPostgresFieldsFromEitherDriver(t *testing.T) {
	pgx := Wrap(CodeConflict, &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}, "insert order")
	if got := PostgresFields(pgx); got == nil || got.Constraint != "orders_order_number_key" {
		t.Fatalf("unexpected pgx fields %+v", got)
	}
	if got := PGCode(fmt.Errorf("wrapped: %w", &pq.Error{Code: "40001"})); got != "40001" {
		t.Fatalf("unexpected pq code %q", got)
	}
	if PGCode(stdErrors.New("plain")) != "" {
		t.Fatal("plain errors have no SQLSTATE")
	}
}
