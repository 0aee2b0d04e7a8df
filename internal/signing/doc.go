// Package signing resolves publisher private keys and produces the detached
// JWS signatures attached to profile attributes.
//
// SecretStore is built from an explicit KeyConfig mapping each publisher to a
// key identifier (a PEM file path or an s3://bucket/key location). It loads
// every key eagerly, so a missing or unreadable key fails construction
// rather than the first signature.
package signing
