/*
Package security provides the symmetric encryption used for data at rest and
the random token generators for API keys and entity versions.

Entity blobs and RSA private PEMs are encrypted with AES-256-GCM before they
reach the backend; the 32-byte key is derived from a configured secret with
SHA-256. The nonce is prepended to each ciphertext.
*/
package security
