package embedding

// EmbedRequest is the request payload for the embedding sidecar.
type EmbedRequest struct {
	Text string `json:"text"`
}

// EmbedResponse is the response from the embedding sidecar.
type EmbedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	Model      string    `json:"model"`
}

// HealthResponse is the response from the sidecar's health endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}
