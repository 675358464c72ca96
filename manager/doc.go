// Package manager is the orchestration facade. It owns the project
// configuration, the module resolver, the execution engine, and the
// selected job engine, and exposes the operations the command surface
// calls: run a pipeline now, submit it as a job, schedule it, and manage
// the resulting jobs.
//
// A Manager is bound to one project root. Pipelines run in-process
// through the engine; deferred and recurring work goes through the
// configured backend as the "pipeline.run" callable, so worker processes
// rebuild the graph from the project on their side.
package manager
