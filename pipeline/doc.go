// Package pipeline defines computation modules and resolves logical module
// names into loaded, introspectable modules.
//
// A module is a named set of node specs. Modules come from two sources: a
// process-global, lock-guarded registry of code-defined modules, and YAML
// definitions on disk whose nodes reference registered component
// functions. String refs resolve with a deterministic fallback order: the
// exact name, the name with hyphens rewritten to underscores, and the name
// under the conventional "pipelines." prefix.
package pipeline
