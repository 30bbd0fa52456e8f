package instance

import "github.com/angelmondragon/storefront-orders/pkg/env"

// ID names the running process for logs. WORKER_ID wins, then the platform
// dyno name, then fallback.
func ID(fallback string) string {
	return env.First(fallback, "WORKER_ID", "DYNO")
}
