package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Meta       interface{} `json:"meta,omitempty"`
	Error      string      `json:"error,omitempty"`
	Details    interface{} `json:"details,omitempty"`
	// Warnings report side effects that failed after the main change was committed.
	Warnings []string `json:"warnings,omitempty"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// SuccessWithWarnings is Success plus messages the UI shows next to the result.
func SuccessWithWarnings(statusCode int, data interface{}, warnings ...string) Response {
	r := Success(statusCode, data)
	r.Warnings = warnings
	return r
}

// Paged wraps a page of results with its pagination meta.
func Paged(statusCode int, data interface{}, meta interface{}) Response {
	r := Success(statusCode, data)
	r.Meta = meta
	return r
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// ErrorWithDetails is Error plus structured detail, such as per-field validation messages.
func ErrorWithDetails(statusCode int, err string, details interface{}) Response {
	r := Error(statusCode, err)
	r.Details = details
	return r
}
