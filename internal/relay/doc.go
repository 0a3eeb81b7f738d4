// Package relay implements the prompt relay: it validates an inbound body,
// builds the Anthropic messages payload, invokes the inference provider once
// and normalises the variable-shape provider response into
// {"response": <content or null>}.
//
// The handler is immutable after construction. Provider and decode failures
// are returned to the caller as coded errors; only validation and
// configuration failures produce a shaped error body.
package relay
