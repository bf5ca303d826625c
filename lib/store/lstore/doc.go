// Package lstore implements a local, in-memory, single-node lock store based on
// the store.ILockStore interface. It is a thin wrapper around a db.KVDB engine.
//
// Every operation reads the wall clock (store.Options.Now), advances the engine
// clock with it and evaluates lock expiry against it. The scope invariant is
// enforced by a conditional Put on the engine, so concurrent LOCK requests for the
// same path cannot both obtain an exclusive lock.
//
// Locks are lost when the process exits.
package lstore
