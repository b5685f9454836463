/*
Package auth sits at the request boundary: it classifies callers as admin or
entity principals, enforces the strict issuer-key rule for token minting, and
applies fixed-window rate limits stored in the shared backend.
*/
package auth
