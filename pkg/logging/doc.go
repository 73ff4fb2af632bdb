// Package logging configures log/slog for logwire.
//
//	log, closer, err := logging.Open(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatJSON,
//	    File:   "/var/log/logwire/logwire.log",
//	})
//	defer closer.Close()
//	log.Info("listening", logging.KeyListener, "syslog")
//
// Components take a *slog.Logger through an option or SetLogger and fall
// back to Nop. Listener loggers carry KeyListener; connection loggers carry
// KeyConnID and KeyRemoteAddr.
package logging
