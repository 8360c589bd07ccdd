// Package token signs and verifies the self-contained access and refresh
// tokens used by the authcore engine. Tokens are never stored server-side:
// validity is proven by signature, expiry and the absence of the jti from
// the revocation store, which is owned by the engine, not this package.
package token
