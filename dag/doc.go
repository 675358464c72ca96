// Package dag composes pipeline modules into a directed acyclic graph of
// named computation nodes and executes it.
//
// Composition folds modules in order, additional modules first and the
// main module last, so a later module's definition of a node overrides an
// earlier one (last-module-wins, by design). Execution walks the graph in
// dependency order in either blocking or suspendable mode; the two modes
// share composition, validation, input application and adapter attachment,
// and differ only in how node invocation is driven.
package dag
