package responses

// Envelope is the body of every 2xx response.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the public part of a pkg/errors.Error.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
