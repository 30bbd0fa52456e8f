package models

import "github.com/google/uuid"

// ensureID assigns a v4 id before insert so rows carry ids on every dialect.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
