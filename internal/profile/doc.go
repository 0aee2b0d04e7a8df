// Package profile models the identity-directory profile document and the
// signed attributes it is made of.
//
// Only the attributes the avatar migration reads or writes are typed. Every
// other top-level key is carried as raw JSON so a profile round-trips without
// loss. Patch is the minimal fragment submitted back to the change API.
package profile
