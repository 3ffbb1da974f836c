// Package cache keeps query results of the remote journal in memory and
// applies mutations optimistically: the cached lists change immediately,
// the remote write follows, and a failed write restores the previous lists.
package cache
