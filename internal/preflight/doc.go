// Package preflight provides readiness checks for the filesystem paths,
// credentials, and remote services a migration run depends on.
//
// The CLI "avatarmig check" command runs them all through RunAll and prints
// one row per Result. "avatarmig migrate" runs the same set and refuses to
// start when any required check fails, so a doomed run never touches a
// single profile.
package preflight
