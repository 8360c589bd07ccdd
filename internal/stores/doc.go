// Package stores contains the Redis-backed state of the authcore engine:
// the token revocation denylist, API-key credential records and usage
// counters, the security policy state (failure counters, lockouts, IP
// blacklist, suspicious-activity log) and the permission cache.
//
// Every mutation is a single-key atomic Redis primitive or a small
// pipeline; there is no cross-key transaction and no in-process shared
// state, so the stores are safe for concurrent use across goroutines and
// across engine instances sharing one Redis.
package stores
