// Package errdefs defines the coded error taxonomy shared by the store,
// token and auth layers, and its mapping onto HTTP status codes.
package errdefs
