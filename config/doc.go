// Package config implements the layered configuration resolver.
//
// Two document kinds exist: the project document (backend selection,
// connection parameters, default directories) and per-pipeline documents
// (params, final vars, executor, adapters, scheduling defaults). Both are
// optional overlays over compiled-in defaults and both support variable
// interpolation (${VAR}, ${VAR:-default}, ${VAR?message}).
//
// Resolve merges five layers field-by-field into one immutable RunConfig,
// highest precedence first: runtime overrides, the FP_SECTION__FIELD
// environment overlay, pipeline over project documents, the legacy global
// shims (FP_LOG_LEVEL, FP_EXECUTOR, FP_CACHE_DIR), and compiled-in
// defaults.
package config
