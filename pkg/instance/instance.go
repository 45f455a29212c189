package instance

import "os"

const fallbackID = "local"

// GetID returns the process instance identifier used in startup logs and
// lock ownership. REVIEW_INSTANCE_ID wins, then the platform dyno name, then
// the hostname.
func GetID() string {
	for _, key := range []string{"REVIEW_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
