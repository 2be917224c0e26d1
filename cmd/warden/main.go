// Warden is an agent governance runtime: policy-gated action execution,
// budget enforcement, human approval workflows, and self-improving decision
// bundles with canary rollout.
//
// Usage:
//
//	# Start the governance daemon (scheduled jobs, watchers, metrics)
//	warden run
//
//	# Start with a custom configuration file
//	warden run --config /path/to/config.yaml
//
//	# Validate rule files
//	warden lint --file rules.yaml
//
//	# Run one training pass for an agent
//	warden train --agent triage
//
//	# Show version information
//	warden version
package main

func main() {
	Execute()
}
