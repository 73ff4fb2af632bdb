// Package tcpserver is the connection-management runtime used by logwire's
// network input plugins.
//
// A Server binds listeners; each Listener accepts TCP connections, wraps
// every socket in a Conn, keeps live connections in its own Registry and
// runs a keepalive reaper once a second that closes connections idle for
// longer than the configured ceiling.
//
// # Threading
//
// All Conn state, every Registry and the reaper belong to a single
// reactor.Loop. Connect callbacks, read callbacks and reaper sweeps run as
// loop tasks, so they never overlap and need no locking. Socket reads and
// writes happen on one reader and one writer goroutine per connection, which
// report back to the loop with Post. Bytes of one connection are delivered in
// the order they were received and write completions arrive in the order the
// writes were issued.
//
// Callbacks must not block: a blocked callback stalls every connection on the
// loop. Code outside the loop reaches listener state through the ctx-taking
// methods (ListConnections, CloseConnection, Shutdown, Close, Terminate),
// which marshal onto the loop.
//
// # Connection Lifecycle
//
//	Connecting -> Open -> Draining -> Closed
//
// The connect callback runs as soon as the Conn is registered and is where
// the owning plugin installs its read callback with OnData. Write queues
// bytes and returns immediately. Close on a connection with queued output
// moves it to Draining; it closes once the writer has handed every byte to
// the kernel. A read callback that fails closes the connection at once and
// the *CallbackError goes to the loop's fault handler; other connections are
// unaffected.
//
// # Usage
//
//	loop := reactor.New(reactor.WithLogger(log))
//	go loop.Run(ctx)
//
//	srv := tcpserver.NewServer(loop, tcpserver.WithLogger(log))
//	keepalive := 30 * time.Second
//	_, err := srv.Listen("0.0.0.0", 5170, tcpserver.Options{Keepalive: &keepalive},
//	    func(c *tcpserver.Conn) error {
//	        c.OnData([]byte("\n"), func(msg []byte) error {
//	            _, err := c.Write(append(msg, '\n'))
//	            return err
//	        })
//	        return nil
//	    })
//	if err != nil {
//	    var be *tcpserver.BindError
//	    ...
//	}
//
//	// On shutdown:
//	srv.Shutdown(ctx)  // stop reading and accepting
//	srv.Close(ctx)     // close sockets
//	srv.Terminate(ctx) // drop registries
package tcpserver
