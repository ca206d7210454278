// Package cache provides a generic, concurrency-safe LRU cache.
//
// It backs the compiled template cache in package renderer and the
// per-recipient broadcaster registry in package broadcast, where the evict
// callback closes broadcasters that fall out of the cache.
package cache
