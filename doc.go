// Package kvenv defines the core types, errors, and helpers shared across the
// kvenv codebase: an embedded, transactional, append-only key-value storage
// engine. This package holds the Environment-independent bits (UUID, error
// kinds, logging, retry/backoff, configuration loading); the Environment
// itself, transactions, and the meta-tree live in the environment and
// metatree subpackages, while the append-only log and garbage collector
// live in walog and gc.
//
// See package environment for the transaction lifecycle and commit protocol.
package kvenv
