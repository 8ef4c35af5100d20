package relay

import (
	"errors"
	"fmt"
)

// ValidationError is a rejected request; its message is shown to the user as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ExternalServiceError wraps a failed or empty conversion from the upstream API.
type ExternalServiceError struct {
	Err error
}

func (e *ExternalServiceError) Error() string { return e.Err.Error() }
func (e *ExternalServiceError) Unwrap() error { return e.Err }

// DownloadCacheError means the converted file could not be mirrored locally.
// The relay recovers by handing out the remote URL.
type DownloadCacheError struct {
	URL string
	Err error
}

func (e *DownloadCacheError) Error() string {
	return fmt.Sprintf("cache converted file from %s: %v", e.URL, e.Err)
}
func (e *DownloadCacheError) Unwrap() error { return e.Err }

var (
	ErrNoFile      = &ValidationError{Message: "No file uploaded."}
	errNoOutputURL = errors.New("ConvertAPI returned no output URL")
)

func sameFormatError(src, dst string) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf("Invalid target format: cannot convert %s -> %s", src, dst)}
}

func wpdTargetError() *ValidationError {
	return &ValidationError{Message: "Invalid target format: output cannot be WPD. Choose PDF or DOCX."}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
