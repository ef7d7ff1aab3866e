// Package inference provides policy/value oracles for the search engine:
// a batching ONNX Runtime client (with an optional session pool), a pure-Go
// MLP fallback, a websocket client for a remote prediction service, and a
// uniform oracle for running without any model at all.
//
// Every client implements the engine's Oracle contract: one raw policy vector
// and one scalar value per input position, in input order.
package inference

import "errors"

// ErrUnavailable marks a transient oracle failure: the model could not be
// reached or returned a malformed response. Callers may retry.
var ErrUnavailable = errors.New("inference: oracle unavailable")
