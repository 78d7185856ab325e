// Package ingestion accepts search-index artifacts over HTTP, persists them
// and announces them to the other replicas.
package ingestion

import (
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
)

// UploadResponse is returned after an index is accepted.
type UploadResponse struct {
	Index     string              `json:"index"`
	Checksum  string              `json:"checksum"`
	Stats     searchindex.Stats   `json:"stats"`
	Warnings  []searchindex.Issue `json:"warnings"`
	Stored    bool                `json:"stored"`
	Published bool                `json:"published"`
}

// RejectedResponse is returned when an upload fails validation.
type RejectedResponse struct {
	Error  string                        `json:"error"`
	Index  string                        `json:"index"`
	Report *searchindex.ValidationReport `json:"report"`
}

// DeleteResponse is returned after an index is removed.
type DeleteResponse struct {
	Index  string `json:"index"`
	Status string `json:"status"`
}
