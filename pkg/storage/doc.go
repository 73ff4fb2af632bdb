// Package storage provides the JSON file key/value store used by plugins
// that keep small amounts of state across restarts.
//
// A JSONStore holds a map in memory. Load replaces it with the contents of
// the backing file and Save writes it back atomically: the data goes to
// path + ".tmp" first and is renamed over the target, so a crash mid-save
// leaves the previous file intact. All methods are safe for concurrent use.
//
//	st := storage.NewJSONStore("/var/lib/logwire/tcp.json")
//	if err := st.Load(); err != nil {
//	    var le *storage.LoadError
//	    ...
//	}
//	st.Put("syslog.messages", 42)
//	err := st.Save()
package storage
