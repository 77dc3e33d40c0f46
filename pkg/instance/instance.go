package instance

import "os"

// GetID identifies the running process in logs. Platform dyno names win
// over WORKER_ID, then the hostname, then fallback.
func GetID(fallback string) string {
	for _, key := range []string{"DYNO", "WORKER_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallback
}
