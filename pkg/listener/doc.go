// Package listener keeps the in-process caches eagerly fresh by consuming
// change events published on the backend's cache channel.
package listener
