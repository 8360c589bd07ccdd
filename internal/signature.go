package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// SignatureFields are the request fields covered by an API-key signature.
// AppID is mandatory; every other field is appended to the signed payload
// only when non-empty. The concatenation order is a wire contract shared
// with existing clients and must never change.
type SignatureFields struct {
	AppID         string
	APIKey        string
	Timestamp     string
	Nonce         string
	RequestMethod string
	RequestPath   string
}

// ComputeSignature returns base64(HMAC-SHA256(secretKey, payload)) where
// payload is appId + apiKey? + timestamp? + nonce? + requestMethod? +
// requestPath?, optional fields omitted entirely when empty.
func ComputeSignature(secretKey string, fields SignatureFields) string {
	var payload strings.Builder
	payload.WriteString(fields.AppID)
	for _, part := range []string{
		fields.APIKey,
		fields.Timestamp,
		fields.Nonce,
		fields.RequestMethod,
		fields.RequestPath,
	} {
		if part != "" {
			payload.WriteString(part)
		}
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares a supplied signature against the recomputed
// one in constant time.
func VerifySignature(secretKey string, fields SignatureFields, supplied string) bool {
	expected := ComputeSignature(secretKey, fields)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
