package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Bundle types.
const (
	BundleTypeTransaction         = "transaction"
	BundleTypeTransactionResponse = "transaction-response"
)

// ErrMissingID is returned when an upsert entry is requested for a resource
// without a stable id.
var ErrMissingID = errors.New("resource has no id")

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type BundleResponse struct {
	Status       string      `json:"status"`
	Location     string      `json:"location,omitempty"`
	LastModified *time.Time  `json:"lastModified,omitempty"`
	Outcome      interface{} `json:"outcome,omitempty"`
}

// NewTransactionBundle returns an empty transaction Bundle.
func NewTransactionBundle() *Bundle {
	return &Bundle{
		ResourceType: "Bundle",
		Type:         BundleTypeTransaction,
	}
}

// AddPut appends an upsert entry addressed at <ResourceType>/<id>.
func (b *Bundle) AddPut(r DomainResource) error {
	if r.GetID() == "" {
		return fmt.Errorf("%s: %w", r.GetResourceType(), ErrMissingID)
	}
	ref := FormatReference(r.GetResourceType(), r.GetID())
	return b.add(r, ref, &BundleRequest{Method: http.MethodPut, URL: ref})
}

func (b *Bundle) add(r DomainResource, fullURL string, req *BundleRequest) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.GetResourceType(), err)
	}
	b.Entry = append(b.Entry, BundleEntry{
		FullURL:  fullURL,
		Resource: raw,
		Request:  req,
	})
	return nil
}

// Requests lists "<METHOD> <url>" for each entry in order.
func (b *Bundle) Requests() []string {
	out := make([]string, 0, len(b.Entry))
	for _, e := range b.Entry {
		if e.Request == nil {
			continue
		}
		out = append(out, e.Request.Method+" "+e.Request.URL)
	}
	return out
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}
