// Package ast defines the typed rule and condition tree used by the policy
// engine.
//
// A rule set is a flat list of rules. Each rule binds an (agent, action) pair
// to an allow or deny effect, guarded by an optional condition tree. Condition
// trees are tagged unions: comparison nodes (eq, ne, gt, gte, lt, lte) test a
// single context field against a typed literal, and logical nodes (all, any,
// not) compose child conditions. There is no dynamic attribute lookup and no
// type coercion; a comparison between mismatched types is an evaluation error,
// not a silent miss.
//
// Rule sets are loaded from YAML or JSON documents (JSON is parsed through the
// YAML decoder, which accepts it as a subset).
package ast
