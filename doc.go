// Package authcore is the unified authentication and token-lifecycle
// core of the power-trading interface platform. It validates JWT access
// tokens and signed API-key requests through a single Authenticate entry
// point, manages issuance, refresh rotation and revocation of token
// pairs, enforces login-failure lockouts and IP blacklisting, and serves
// permission checks through a read-through Redis cache.
//
// The engine is assembled with a Builder and holds no per-call state:
// all shared state lives in Redis behind single-key atomic operations,
// so multiple engine instances can serve one deployment concurrently.
package authcore
