package instance

import (
	"os"
	"strings"
)

// ID names the running process in logs and lock holders. The platform dyno
// name wins over WORKER_ID.
func ID() string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return "local"
}
