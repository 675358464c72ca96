// Package errors provides the layered error taxonomy for the pipeline core.
// Every error carries a machine-readable kind identifying the failing layer
// (configuration, resolution, execution, backend, capability), the failing
// identifier, and structured details. Lower layers never swallow errors;
// only the manager translates them into caller-facing results.
package errors
