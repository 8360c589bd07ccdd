// Package internal holds credential key generation and masking helpers
// shared by the root engine and its stores.
package internal
