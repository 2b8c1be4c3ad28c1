package errors

// Error codes for standardized error responses
const (
	// Request errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Resource errors
	ErrCodeCategoryNotFound = "category_not_found"

	// Pipeline errors
	ErrCodeSubmitFailed  = "submit_failed"
	ErrCodeFetchFailed   = "fetch_failed"
	ErrCodeUpgradeFailed = "upgrade_failed"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
