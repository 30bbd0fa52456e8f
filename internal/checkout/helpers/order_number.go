package helpers

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// NewOrderNumber formats ORD followed by the epoch millis and a 0-999 suffix.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD%d%d", now.UnixMilli(), rand.IntN(1000))
}
