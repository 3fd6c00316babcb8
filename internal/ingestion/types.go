// Package ingestion defines the request/response types and the Kafka event
// schema of the document ingestion pipeline, which feeds the streaming
// indexer.
package ingestion

// DocumentRequest is one document accepted by the ingestion HTTP endpoint.
// Filename is the slash-separated name search results report.
type DocumentRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// BatchRequest is the body of the bulk endpoint.
type BatchRequest struct {
	Documents []DocumentRequest `json:"documents"`
}

// DocumentResponse is returned for every accepted document.
type DocumentResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// IngestEvent is the Kafka payload consumed by the streaming indexer.
type IngestEvent struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

const StatusQueued = "QUEUED"
