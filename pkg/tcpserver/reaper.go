package tcpserver

// sweep is one reaper tick. Each connection still registered is either
// evicted for exceeding keepalive, dropped if it is already closed, or aged
// by one interval. Connections with output in flight are never evicted.
func (l *Listener) sweep() {
	for _, id := range l.registry.IDs() {
		c, ok := l.registry.Get(id)
		if !ok {
			continue
		}

		switch {
		case c.Closed():
			l.registry.Remove(id)
			l.inst.active(-1)
		case !c.Writing() && l.opts.Keepalive != nil && c.idle+KeepaliveCheckInterval > *l.opts.Keepalive:
			l.registry.Remove(id)
			l.inst.active(-1)
			l.inst.reaped()
			c.log.Debug("closing idle connection", "idle_seconds", c.IdleSeconds()+1)
			_ = c.Close()
		default:
			c.idle += KeepaliveCheckInterval
		}
	}
}
