// Package avatar turns a legacy avatar image into the fixed set of square
// PNG renditions and persists them in the size-bucketed layout.
//
// Transcoder validates the source (recognised format, near-square aspect
// ratio) and produces a RenditionSet. Writer places each member of the set at
// {root}/{bucket}/{name} where bucket is raw, 40, 100, or 264.
package avatar
