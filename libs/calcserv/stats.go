package calcserv

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const recentWindow = 10 * time.Minute

// Stats is a point-in-time snapshot of a server.
type Stats struct {
	Value         int64
	ActiveConns   int64
	TotalConns    uint64
	Commands      map[string]uint64
	RecentClients int
}

type collector struct {
	activeConns int64
	totalConns  uint64
	// string => *uint64
	commands sync.Map
}

func (c *collector) command(verb string) *uint64 {
	rv, _ := c.commands.LoadOrStore(verb, new(uint64))
	return rv.(*uint64)
}

// Stats returns a snapshot of the counter and connection statistics.
func (srv *Server) Stats() Stats {
	st := Stats{
		Value:         srv.cfg.Counter.Read(),
		ActiveConns:   atomic.LoadInt64(&srv.stats.activeConns),
		TotalConns:    atomic.LoadUint64(&srv.stats.totalConns),
		Commands:      make(map[string]uint64),
		RecentClients: srv.recent.ItemCount(),
	}
	srv.stats.commands.Range(func(k, v interface{}) bool {
		st.Commands[k.(string)] = atomic.LoadUint64(v.(*uint64))
		return true
	})
	return st
}

func (srv *Server) connOpened(remote net.Addr) time.Time {
	atomic.AddInt64(&srv.stats.activeConns, 1)
	atomic.AddUint64(&srv.stats.totalConns, 1)
	srv.recent.SetDefault(hostOf(remote), time.Now())
	if srv.cfg.OnConnect != nil {
		srv.cfg.OnConnect()
	}
	return time.Now()
}

func (srv *Server) connClosed(opened time.Time) {
	atomic.AddInt64(&srv.stats.activeConns, -1)
	if srv.cfg.OnDisconnect != nil {
		srv.cfg.OnDisconnect(time.Since(opened))
	}
}

func (srv *Server) countCommand(verb string, elapsed time.Duration) {
	atomic.AddUint64(srv.stats.command(verb), 1)
	if srv.cfg.OnCommand != nil {
		srv.cfg.OnCommand(verb, elapsed)
	}
}
