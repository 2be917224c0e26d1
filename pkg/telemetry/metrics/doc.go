// Package metrics registers and records the Prometheus metrics produced by
// the governance core: policy decisions by rule and effect, executions by
// action type and outcome, failures by error type, approval lifecycle counts,
// canary routing, and bundle transitions. An external collector scrapes them;
// this package only produces.
package metrics
