package dto

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// MeResponse is the caller's profile with the global capabilities the UI gates on.
type MeResponse struct {
	Profile      any      `json:"profile"`
	Capabilities []string `json:"capabilities"`
}

type EnumsResponse struct {
	Statuses   []string `json:"statuses"`
	Severities []string `json:"severities"`
	Roles      []string `json:"roles"`
}
