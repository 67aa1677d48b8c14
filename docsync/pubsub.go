package docsync

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/docs_backend/config"
)

// PubSubPushHandler receives push deliveries for claimed sync jobs. It
// always acks: a job that fails here is retried off its DB row, and a
// lost delivery is reclaimed by the dispatcher's stale-lock sweep, so
// Pub/Sub-level redelivery would only double the work.
func PubSubPushHandler(d *Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.SyncPushEndpointEnabled() {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload JobPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.JobId == 0 {
			c.Status(204)
			return
		}

		_ = d.ProcessPushed(c.Request.Context(), payload.JobId)
		c.Status(204)
	}
}
