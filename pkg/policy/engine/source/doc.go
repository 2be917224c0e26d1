// Package source provides rule sources for the policy engine: an in-memory
// source for tests and programmatic rule sets, and a file source that loads
// YAML/JSON rule files and watches them with fsnotify for hot reload.
package source
