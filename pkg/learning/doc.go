// Package learning implements the online-learning safety loop: a deduplicated
// store of outcome-labeled examples, a deterministic heuristic trainer that
// derives decision-threshold bundles from them, judge-weight calculation with
// exponential time decay, and uncertainty sampling to pick examples worth a
// human look.
//
// Nothing here calls an external model. Training is a deterministic fit over
// the labeled feature vectors, so the same inputs always produce the same
// bundle draft.
package learning
