package enums

import (
	"fmt"
	"strings"
)

// SubmissionSource selects which record set becomes the gold copy of an invoice.
type SubmissionSource string

const (
	// SourceTransactional submits the reviewer-edited transactional records.
	SourceTransactional SubmissionSource = "transactional"
	// SourceExtracted submits the DocAI-extracted records verbatim.
	SourceExtracted SubmissionSource = "extracted"
)

func (s SubmissionSource) IsValid() bool {
	return s == SourceTransactional || s == SourceExtracted
}

func ParseSubmissionSource(value string) (SubmissionSource, error) {
	switch SubmissionSource(strings.ToLower(strings.TrimSpace(value))) {
	case SourceTransactional:
		return SourceTransactional, nil
	case SourceExtracted:
		return SourceExtracted, nil
	}
	return "", fmt.Errorf("invalid submission source %q", value)
}
