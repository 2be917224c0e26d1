// Package schedule runs the nightly maintenance jobs: heuristic training,
// judge weight recomputation, and canary regression checks.
//
// Jobs for the same agent are serialized so no two jobs mutate that agent's
// bundles concurrently; jobs for different agents run in parallel.
package schedule
