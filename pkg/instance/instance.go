package instance

import (
	"os"

	"github.com/loomline/erp-backend/pkg/env"
)

const EnvInstanceID = "LOOMLINE_INSTANCE_ID"

const fallbackID = "local"

// ID names this process in logs and cron lock ownership. An explicit
// LOOMLINE_INSTANCE_ID wins over the platform's dyno name and the host name.
func ID() string {
	if id := env.First(EnvInstanceID, "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
