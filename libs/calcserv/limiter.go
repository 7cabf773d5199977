package calcserv

import (
	"net"

	"golang.org/x/time/rate"
)

// getLimiter returns the command limiter shared by every connection from the
// same IP, or nil when commands are not rate limited.
func (srv *Server) getLimiter(remote net.Addr) *rate.Limiter {
	if srv.limiters == nil {
		return nil
	}
	new := rate.NewLimiter(rate.Limit(srv.cfg.CommandRate), srv.cfg.CommandBurst)
	prev, _, _ := srv.limiters.PeekOrAdd(hostOf(remote), new)
	if prev != nil {
		return prev.(*rate.Limiter)
	}
	return new
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
