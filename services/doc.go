// Package services contains the HTTP-facing components of CipherTrace: the
// gateway that exposes the /fhevm REST surface over the ledger, the oracle
// worker that completes pending analyses, and the postgres-backed ledger
// store for deployments that outlive a process.
//
// The gateway acts on the ledger with the identity of its configured signer,
// mirroring a backend that signs every on-chain call with a single wallet.
// The oracle runs with the ledger's designated oracle identity and is the
// only component that ever sees payload plaintext.
package services
