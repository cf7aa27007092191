package api

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query        string `json:"query" binding:"required,notblank"`
	ForceRefresh bool   `json:"forceRefresh"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
