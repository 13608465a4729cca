// Package watcher monitors several capabilities at once and mirrors their
// live usage into the store.
//
// Each capability gets its own monitor.Monitor. Monitor events are funnelled
// through one dispatcher goroutine, which writes them to the SQLite mirror
// and then hands them to the configured sink, so the store always reflects
// an event before a consumer sees it.
//
// Key features:
//   - Capabilities that cannot be resolved are skipped, not fatal
//   - Reconcile adds and removes monitors when the configuration changes
//   - Current-state mirror only (the store is reset at session start)
//   - Daemon mode support with PID file management
//
// Example usage:
//
//	st, err := store.New(dbPath)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	w := watcher.New(watcher.Options{
//		Store: st,
//		Sink:  func(e monitor.Event) { fmt.Println(e.Capability, len(e.Changed)) },
//	})
//	if err := w.Start([]string{"microphone", "webcam"}); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
package watcher
