// Package incremental is the incremental matcher: it discards every
// automatically-discovered fixed point, keeps manually
// confirmed ones as ground truth the driver cannot overrule, and re-enters
// the matching driver with the same step list.
package incremental
