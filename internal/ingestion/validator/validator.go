// Package validator checks ingestion requests before they are queued for
// indexing and returns per-field error details.
package validator

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
)

const (
	maxFilenameLength = 1024
	maxContentLength  = 1 << 20
	maxBatchSize      = 500
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// Validator enforces the filename extensions the indexer is configured for.
type Validator struct {
	extensions map[string]struct{}
}

// New returns a Validator accepting the given extensions. An empty list
// accepts any extension.
func New(extensions []string) *Validator {
	v := &Validator{extensions: make(map[string]struct{}, len(extensions))}
	for _, e := range extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		v.extensions[e] = struct{}{}
	}
	return v
}

// ValidateDocument checks one document. Content must be valid UTF-8 so the
// indexer does not have to drop it later.
func (v *Validator) ValidateDocument(req *ingestion.DocumentRequest) error {
	errs := make(map[string]string)
	v.check(req, "", errs)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateBatch checks every document of a bulk request. Field names carry
// the document index, as in "documents[2].filename".
func (v *Validator) ValidateBatch(req *ingestion.BatchRequest) error {
	errs := make(map[string]string)
	switch n := len(req.Documents); {
	case n == 0:
		errs["documents"] = "at least one document is required"
	case n > maxBatchSize:
		errs["documents"] = fmt.Sprintf("at most %d documents per batch", maxBatchSize)
	default:
		for i := range req.Documents {
			v.check(&req.Documents[i], fmt.Sprintf("documents[%d].", i), errs)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func (v *Validator) check(req *ingestion.DocumentRequest, prefix string, errs map[string]string) {
	name := strings.TrimSpace(req.Filename)
	switch {
	case name == "":
		errs[prefix+"filename"] = "filename is required"
	case len(name) > maxFilenameLength:
		errs[prefix+"filename"] = fmt.Sprintf("filename must be at most %d characters", maxFilenameLength)
	case strings.HasPrefix(name, "/") || path.Clean(name) != name || strings.HasPrefix(name, "../") || name == "..":
		errs[prefix+"filename"] = "filename must be a clean relative path"
	case !v.allowed(name):
		errs[prefix+"filename"] = fmt.Sprintf("extension %q is not indexed", path.Ext(name))
	}
	switch {
	case len(req.Content) > maxContentLength:
		errs[prefix+"content"] = fmt.Sprintf("content must be at most %d bytes", maxContentLength)
	case !utf8.ValidString(req.Content):
		errs[prefix+"content"] = "content must be valid UTF-8"
	}
}

func (v *Validator) allowed(name string) bool {
	if len(v.extensions) == 0 {
		return true
	}
	_, ok := v.extensions[strings.ToLower(path.Ext(name))]
	return ok
}
