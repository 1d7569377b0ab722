package core

import "fmt"

// ConfigurationError reports a missing or malformed dependency at
// handler construction. It is fatal; the handler is never built.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "relay configuration: " + e.Reason
}

// TransportError reports a failed remote delivery: the transport
// itself failed, the response status was outside the success range, or
// the response body was not decodable. Recovered by the local fallback
// when enabled, surfaced otherwise.
type TransportError struct {
	// Status is the HTTP status code, or 0 when the request never
	// produced a response.
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote delivery failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("remote delivery failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DeliveryError reports a failed local save offer. Always surfaced;
// there is no further fallback beneath local delivery.
type DeliveryError struct {
	Filename string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("local delivery of %q failed: %v", e.Filename, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
