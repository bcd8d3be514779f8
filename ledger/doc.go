// Package ledger implements the encrypted data-handle registry and the
// analysis request ledger that back the CipherTrace gateway.
//
// The registry records an opaque, sealed payload per submitted transaction
// and hands back a 256-bit data-handle identifier bound to the submitting
// owner. The analysis ledger records intent to compute over a set of handles:
// a request is minted in the Pending state and is moved to Completed exactly
// once by the computation oracle, which attaches an opaque result handle.
//
// Neither component inspects payload plaintext. All mutating calls are
// serialized through a single mutex and validate their preconditions in full
// before touching the store, so a failed call never leaves partial state.
//
// Access control is enforced on every read and write of entity state: the
// entity owner, the administrator, and (for reads and completion) the
// designated computation oracle are the only permitted callers.
package ledger
