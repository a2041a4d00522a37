// Package posts reconciles a content-addressed blob store with a ledger.
//
// A post has two halves.
// Its payload,
// a ContentRecord with a title, some text, and an author,
// is serialized and written to a content-addressable store,
// which hands back the content's identifier:
// a CID computed from the bytes themselves,
// so that identical payloads always get identical identifiers.
//
// The other half lives on a ledger,
// an append-only record maintained by some external consensus process.
// Anchoring a post on the ledger records its content identifier,
// the address that created it,
// and a creation time,
// and assigns it a permanent, monotonically increasing post ID.
// The ledger also keeps each post's rating,
// which changes only when the ledger processes a vote.
// This module never computes a rating itself.
//
// The two stores fail independently.
// Content may be stored and never anchored
// (if the ledger rejects the anchor, or the caller gives up waiting),
// and a ledger entry's content may be temporarily or permanently unreachable.
// The subpackages deal with this:
//
//   - content holds the ContentStore implementations
//   - ledger holds the Ledger implementations
//   - publish writes content and then anchors it, in that order
//   - vote submits votes and waits for them to become final
//   - aggregate joins ledger entries with their content into MergedPosts
//   - server exposes all of that over HTTP
//
// Writes to the ledger are not final when they are submitted.
// Every submission produces a Receipt,
// which can be polled (Ledger.Status)
// or waited on with a deadline (Ledger.AwaitFinality).
// A wait that runs out of time produces ErrTimeout,
// which means the outcome is unknown:
// the intent may still be confirmed later.
// Callers must check the ledger before retrying such an intent,
// or risk anchoring the same content twice.
package posts
