package validation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/vetpath/vetpath-client/internal/core/domain"
)

// Validator enforces upload preconditions locally, before any network call.
type Validator struct {
	maxBytes int64
	allowed  map[string]bool
}

func New(maxBytes int64, allowedTypes []string) *Validator {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[normalizeType(t)] = true
	}
	return &Validator{
		maxBytes: maxBytes,
		allowed:  allowed,
	}
}

func (v *Validator) Validate(file domain.FileInput) error {
	if file.Size() == 0 {
		return domain.WrapError(domain.ErrValidation, "validate file", fmt.Errorf("file %q is empty", file.Name))
	}
	if file.Size() > v.maxBytes {
		return domain.WrapError(domain.ErrValidation, "validate file",
			fmt.Errorf("file %q is %d bytes, the limit is %d", file.Name, file.Size(), v.maxBytes))
	}
	contentType := normalizeType(file.ContentType)
	if !v.allowed[contentType] {
		return domain.WrapError(domain.ErrValidation, "validate file",
			fmt.Errorf("file type %q is not accepted", file.ContentType))
	}
	if contentType == "application/pdf" {
		if err := sniffPDF(file.Data); err != nil {
			return domain.WrapError(domain.ErrValidation, "validate file",
				fmt.Errorf("file %q is not a readable PDF: %w", file.Name, err))
		}
	}
	return nil
}

// sniffPDF parses the document structure so corrupt uploads are rejected
// before a target is requested from the backend. The pdf package panics on
// some malformed inputs, so the parse is fenced.
func sniffPDF(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	if reader.NumPage() == 0 {
		return fmt.Errorf("document has no pages")
	}
	return nil
}

func normalizeType(contentType string) string {
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return contentType
}
