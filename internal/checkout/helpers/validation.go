package helpers

import (
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

const (
	maxAddressLength = 512
	maxPhoneLength   = 32
)

// FieldViolation describes one rejected checkout field.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidateShipping trims and checks the delivery details captured at checkout.
func ValidateShipping(address, phone string) (string, string, error) {
	address = strings.TrimSpace(address)
	phone = strings.TrimSpace(phone)

	var violations []FieldViolation
	switch {
	case address == "":
		violations = append(violations, FieldViolation{Field: "shipping_address", Reason: "required"})
	case len(address) > maxAddressLength:
		violations = append(violations, FieldViolation{Field: "shipping_address", Reason: fmt.Sprintf("must be at most %d characters", maxAddressLength)})
	}
	switch {
	case phone == "":
		violations = append(violations, FieldViolation{Field: "phone", Reason: "required"})
	case len(phone) > maxPhoneLength:
		violations = append(violations, FieldViolation{Field: "phone", Reason: fmt.Sprintf("must be at most %d characters", maxPhoneLength)})
	case !validPhone(phone):
		violations = append(violations, FieldViolation{Field: "phone", Reason: "may only contain digits, spaces and + - ( )"})
	}
	if len(violations) == 0 {
		return address, phone, nil
	}
	return "", "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid checkout details for %d field(s)", len(violations))).
		WithDetails(map[string]any{"violations": violations})
}

func validPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '+' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits > 0
}
