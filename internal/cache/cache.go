package cache

import "errors"

// ErrCacheMiss is returned when a key is absent from the cache. It is an
// internal signal only: the service treats any other cache error the same
// way, so a cache failure never surfaces to a client.
var ErrCacheMiss = errors.New("cache miss")
