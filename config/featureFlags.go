package config

import (
	"os"
	"strings"
)

// SyncDirectProcessing makes the dispatcher run claimed sync jobs in-process
// instead of publishing them to Pub/Sub for push delivery.
//
// Set via env:
// - SYNC_DIRECT_PROCESSING=true
func SyncDirectProcessing() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_DIRECT_PROCESSING")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// SyncPushEndpointEnabled exposes the Pub/Sub push endpoint for sync jobs.
// Disable when direct processing is the only delivery path.
//
// Set via env:
// - SYNC_PUSH_ENDPOINT_ENABLED=true
func SyncPushEndpointEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_PUSH_ENDPOINT_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
