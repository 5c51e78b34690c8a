// Package capability implements the pure utility surface handed to plugin scripts:
// hashing, AES and RSA ciphers, buffer encodings and compression.
//
// Nothing in this package performs I/O; every function is a CPU-only transformation
// of its arguments.
package capability
