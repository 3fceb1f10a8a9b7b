// Package ratelimit derives client identities from request metadata and
// enforces per-identity request quotas.
//
// Every limit type carries a sustained window and an optional shorter burst
// window; a request is admitted only when both have headroom. Quotas are
// scaled down for identities derived with lower confidence, so a client
// without a trustworthy network address is throttled harder rather than
// blocked.
//
// Window state lives in Redis and is updated by a single Lua script per
// check. When Redis is not configured or a call fails, the Limiter degrades
// to an in-process window over a bounded LRU map. That fallback is only
// consistent within one process.
package ratelimit
