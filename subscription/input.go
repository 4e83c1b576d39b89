package subscription

// Input is the payload for Create. A nil RetryLimit and a zero TimeoutMs
// take the service defaults; a nil Active means true. RetryLimit 0 means a
// single attempt with no retries.
type Input struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Secret      string   `json:"secret,omitempty"`
	Events      []string `json:"events"`
	Active      *bool    `json:"active,omitempty"`
	RetryLimit  *int     `json:"retry_limit,omitempty"`
	TimeoutMs   int      `json:"timeout_ms,omitempty"`
	Description string   `json:"description,omitempty"`
	CreatedBy   string   `json:"created_by,omitempty"`
}

// UpdateInput is a partial patch. Nil fields are left unchanged.
type UpdateInput struct {
	Name        *string   `json:"name,omitempty"`
	URL         *string   `json:"url,omitempty"`
	Secret      *string   `json:"secret,omitempty"`
	Events      *[]string `json:"events,omitempty"`
	Active      *bool     `json:"active,omitempty"`
	RetryLimit  *int      `json:"retry_limit,omitempty"`
	TimeoutMs   *int      `json:"timeout_ms,omitempty"`
	Description *string   `json:"description,omitempty"`
}

// ListOpts configures filtering and pagination for List.
type ListOpts struct {
	Offset int
	Limit  int
	Active *bool
}
