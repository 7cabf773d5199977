package calcserv

import (
	"net"
	"time"

	"github.com/geph-official/tcpcalc/libs/buffconn"
	"github.com/geph-official/tcpcalc/libs/calcproto"
	log "github.com/sirupsen/logrus"
)

func (srv *Server) handle(rawClient net.Conn) {
	defer srv.handlers.Done()
	defer srv.untrack(rawClient)
	client := buffconn.New(rawClient)
	defer client.Close()
	remote := client.RemoteAddr()
	logger := log.WithField("remote", remote)
	defer srv.connClosed(srv.connOpened(remote))
	logger.Debug("accepted")

	limiter := srv.getLimiter(remote)
	var err error
	defer func() {
		logger.WithField("reason", err).Debug("closed")
	}()
	for {
		if srv.cfg.IdleTimeout > 0 {
			client.SetReadDeadline(time.Now().Add(srv.cfg.IdleTimeout))
		}
		var line string
		line, err = client.ReadLine()
		tooLong := err == buffconn.ErrLineTooLong
		if err != nil && !tooLong {
			return
		}
		err = nil
		if limiter != nil {
			if err = limiter.Wait(srv.ctx); err != nil {
				return
			}
		}
		start := time.Now()
		verb, reply, hangup := calcproto.VerbInvalid, calcproto.InvalidReply, false
		if tooLong {
			logger.Debugf("rejected line over %v bytes", buffconn.MaxLineLength)
		} else {
			var perr error
			verb, reply, hangup, perr = srv.interp.Handle(line)
			if perr != nil {
				logger.Debugf("rejected %q: %v", line, perr)
			}
		}
		srv.countCommand(string(verb), time.Since(start))
		if hangup {
			return
		}
		if err = client.WriteLine(reply); err != nil {
			return
		}
	}
}
