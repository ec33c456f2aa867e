// Package worker implements the offline cache policy engine: the lifecycle
// controller that installs and activates cache generations, the static rule
// table that routes each GET to cache-first or network-first, and the two
// strategies themselves. Strategies only see a Request and a cache.Bucket, so
// they can be exercised without any HTTP server. The edge (internal/proxy)
// feeds requests in through the event Dispatcher.
package worker
