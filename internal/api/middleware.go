package api

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the wire version of the response envelope.
// Bump only with a coordinated client release.
const EnvelopeVersion = 1

// APIEnvelope wraps every response body. Success responses carry data,
// simple errors carry an error string.
type APIEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v" doc:"Envelope version"`
	Success bool   `json:"success" doc:"Whether the request succeeded"`
	Data    any    `json:"data,omitempty" doc:"Response payload"`
	Error   string `json:"error,omitempty" doc:"Error message for failed requests"`
}

// APIErrorEnvelope wraps detailed errors that carry a machine-readable code.
type APIErrorEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v" doc:"Envelope version"`
	Success bool   `json:"success" doc:"Always false"`
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// EnvelopeTransformer wraps all API responses in a versioned envelope.
// Registered as a huma transformer so handlers return plain bodies.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	// Already enveloped (defensive; transformers run once per response).
	switch v.(type) {
	case APIEnvelope, APIErrorEnvelope:
		return v, nil
	}

	isError := strings.HasPrefix(status, "4") || strings.HasPrefix(status, "5")

	// Detailed errors with a code keep their structure.
	if apiErr, ok := v.(*APIError); ok && apiErr.Code != "" {
		return APIErrorEnvelope{
			Version: EnvelopeVersion,
			Success: false,
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}, nil
	}

	// Anything else error-shaped becomes a simple error envelope.
	if err, ok := v.(error); ok {
		return APIEnvelope{
			Version: EnvelopeVersion,
			Success: false,
			Error:   err.Error(),
		}, nil
	}

	if isError {
		return APIEnvelope{
			Version: EnvelopeVersion,
			Success: false,
		}, nil
	}

	return APIEnvelope{
		Version: EnvelopeVersion,
		Success: true,
		Data:    v,
	}, nil
}
