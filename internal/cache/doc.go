// Package cache defines the generation-versioned store behind the offline
// worker. A Store holds named generations (one per worker version); each
// generation is a Bucket of request-key → Entry pairs. Keys are derived from
// the request URL without its query string, so lookups that ignore the search
// part collapse onto one entry per path. Three drivers are provided: a
// filesystem store (temp file + rename), an in-memory store backed by
// ristretto, and a Redis store. Writes from the fetch path go through Writer,
// which is best-effort: failures are logged and counted, never returned.
package cache
