// Package schedstore implements the persistent scheduler job engine on
// a GORM-managed SQLite store.
//
// Schedules survive restarts: every submission becomes a row holding the
// callable name, its arguments, and the normalized trigger. A poll loop
// claims rows whose fire time has passed, runs the callable in-process,
// and either resolves the row or re-arms it for the trigger's next fire.
//
// Because callables run inside the scheduler process itself, the engine
// can drive the suspendable execution path; SupportsAsync is true.
package schedstore
