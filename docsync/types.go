package docsync

import "encoding/json"

// payload of sync-document / resync-document jobs; the worker reloads the
// document row so stale payload data never reaches the index.
type DocumentJobPayload struct {
	Id         int    `json:"id"`
	BusinessId string `json:"business_id"`
}

// payload of unsync-document jobs. DocIndexId travels in the payload because
// the document row may already be deleted when the job runs.
type UnsyncJobPayload struct {
	Id         int    `json:"id"`
	BusinessId string `json:"business_id"`
	DocIndexId string `json:"doc_index_id"`
}

// payload of remove-and-resync-document jobs. OldKey is the storage key the
// index entry was built from, captured before the row was updated.
type RemoveResyncJobPayload struct {
	Id         int    `json:"id"`
	BusinessId string `json:"business_id"`
	DocIndexId string `json:"doc_index_id"`
	OldKey     string `json:"old_key"`
}

// payload of the check-sync-status watchdog job.
type CheckSyncStatusPayload struct {
	Id         int    `json:"id"`
	BusinessId string `json:"business_id"`
	Origin     string `json:"origin"` // "sync" | "resync"
}

// DocumentMetadata is the shape sent to the indexing gateway. The gateway
// consumes camelCase keys; only the envelope fields around it (doc_id,
// old_key) stay snake_case.
type DocumentMetadata struct {
	Title           string `json:"title"`
	ReferenceNumber string `json:"referenceNumber"`
	IssuingBody     string `json:"issuingBody"`
	DocumentType    string `json:"documentType"`
	DocumentField   string `json:"documentField"`
	IssuanceDate    string `json:"issuanceDate"`
	EffectiveDate   string `json:"effectiveDate"`
	IsRegulatory    string `json:"isRegulatory"`   // "regulatory document" | "non-regulatory document"
	ValidityStatus  string `json:"validityStatus"` // "valid" | "expired"
	InvalidDate     string `json:"invalidDate"`
	Key             string `json:"key"`
	FileUrl         string `json:"fileUrl"`
}

// Pub/Sub push delivery envelope.
type PubSubPushEnvelope struct {
	Message struct {
		Data        json.RawMessage   `json:"data"`
		Attributes  map[string]string `json:"attributes"`
		MessageId   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// JobPubSubPayload is the message body published for push delivery; carries
// the job row id, the worker reloads everything else.
type JobPubSubPayload struct {
	JobId      int    `json:"job_id"`
	BusinessId string `json:"business_id"`
	JobName    string `json:"job_name"`
}
