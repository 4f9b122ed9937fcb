// Package httputil holds the JSON response and request-decode helpers the
// control-surface handlers share, so every endpoint emits the same envelope
// and applies the same body limits.
package httputil
