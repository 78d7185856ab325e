// Package validator checks upload requests before the body is decoded. It
// returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/catalog"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateUpload checks the target name and that a body was sent.
// contentLength is -1 when unknown. Size limits are enforced while reading.
func ValidateUpload(name string, contentLength int64) error {
	errs := make(map[string]string)
	if err := catalog.ValidateName(name); err != nil {
		errs["name"] = "name must start with a letter or digit and contain only letters, digits, '.', '_' or '-' (max 128)"
	}
	if contentLength == 0 {
		errs["body"] = "body is required and must not be empty"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
