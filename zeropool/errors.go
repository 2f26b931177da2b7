// errors.go - Error taxonomy shared by the tree, stores and proof engine.
//
// Five failure classes cover the whole core: coordinates outside the tree,
// witness shape mismatches, malformed serialized values, persistence failures
// and cryptographic backend failures. Operations fail fast and leave state
// unchanged; callers dispatch with errors.As.

package zeropool

import "fmt"

// OutOfRangeError reports a coordinate or index outside [0, capacity),
// or a proof request for a leaf that was never written.
type OutOfRangeError struct {
	What  string
	Index uint64
	Limit uint64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [0, %d)", e.What, e.Index, e.Limit)
}

// WitnessError reports a public/secret input whose shape does not match the
// target circuit. It is never transient; retrying without adjusting the
// inputs cannot succeed.
type WitnessError struct {
	Circuit string
	Err     error
}

func (e *WitnessError) Error() string {
	return fmt.Sprintf("witness does not match %s circuit: %v", e.Circuit, e.Err)
}

func (e *WitnessError) Unwrap() error { return e.Err }

// DecodeError reports a malformed serialized proof, key or hash value,
// detected before any store mutation or cryptographic check.
type DecodeError struct {
	What   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s: %s: %v", e.What, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s: %s", e.What, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StorageError reports an underlying persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// InternalError reports a cryptographic backend failure that is not
// attributable to caller input.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal %s failure: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }
