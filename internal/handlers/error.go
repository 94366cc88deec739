package handlers

// ErrorResponse is the uniform API error body.
type ErrorResponse struct {
	Message string `json:"message"`
}
