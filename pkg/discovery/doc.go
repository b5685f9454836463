// Package discovery computes a service's outbound and inbound link views as
// pure projections over the cache.
package discovery
