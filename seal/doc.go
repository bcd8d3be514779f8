// Package seal defines the encryption boundary between CipherTrace and the
// homomorphic computation oracle.
//
// A Sealer turns transaction plaintext into an opaque handle and back, and
// does the same for analysis scores. The registry and ledger only ever see
// the opaque form. Two implementations are provided:
//
//   - HexSealer: a trivially reversible hex-of-JSON codec. It is a stand-in
//     for tests and simulation deployments and carries no security property.
//   - BGVSealer: lattigo v6 BGV encryption with scalars limb-decomposed into
//     plaintext slots.
package seal
