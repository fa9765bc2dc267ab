package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidateFilename validates an uploaded file name for safety.
// Uploaded names end up in design labels and artifact keys, so they must be
// plain basenames.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters or null bytes
//   - No path separators or traversal sequences
//   - Maximum length of 256 characters
func ValidateFilename(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "file name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidInput, "file name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "file name contains invalid control characters")
		}
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidInput, "file name cannot contain path separators")
	}

	if strings.Contains(name, "..") {
		return New(ErrCodeInvalidInput, "file name cannot contain path traversal sequences (..)")
	}

	return nil
}

// sheetIDRegex matches template identifiers such as "template_12x16".
var sheetIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateSheetID validates a sheet template identifier.
func ValidateSheetID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidSheet, "sheet id cannot be empty")
	}
	if !sheetIDRegex.MatchString(id) {
		return New(ErrCodeInvalidSheet, "invalid sheet id: %q", id)
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
