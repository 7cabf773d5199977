package calcserv

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/geph-official/tcpcalc/libs/calcproto"
	"github.com/geph-official/tcpcalc/libs/counter"
	lru "github.com/hashicorp/golang-lru"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
	"gopkg.in/tomb.v1"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server closed")

// Config configures a Server. Zero values mean "no limit".
type Config struct {
	Addr    string
	Counter *counter.Counter

	MaxConns     int
	IdleTimeout  time.Duration
	CommandRate  float64
	CommandBurst int

	OnCommand    func(verb string, elapsed time.Duration)
	OnConnect    func()
	OnDisconnect func(lifetime time.Duration)
}

// Server accepts connections and runs one handler goroutine per connection,
// all sharing a single counter.
type Server struct {
	stats  collector // first for 64-bit atomic alignment
	cfg    Config
	interp *calcproto.Interpreter

	limiters *lru.Cache
	recent   *cache.Cache

	death     tomb.Tomb
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	lock     sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	handlers sync.WaitGroup
}

// NewServer creates a server. It does not start listening.
func NewServer(cfg Config) *Server {
	if cfg.Counter == nil {
		cfg.Counter = counter.New(0)
	}
	if cfg.CommandRate > 0 && cfg.CommandBurst < 1 {
		cfg.CommandBurst = 1
	}
	srv := &Server{
		cfg:    cfg,
		interp: &calcproto.Interpreter{Counter: cfg.Counter},
		recent: cache.New(recentWindow, time.Minute),
		conns:  make(map[net.Conn]struct{}),
	}
	srv.ctx, srv.cancel = context.WithCancel(context.Background())
	if cfg.CommandRate > 0 {
		limiters, err := lru.New(16384)
		if err != nil {
			panic(err)
		}
		srv.limiters = limiters
	}
	return srv
}

// ListenAndServe listens on cfg.Addr and serves until Close.
func (srv *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", srv.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %v", srv.cfg.Addr)
	}
	return srv.Serve(listener)
}

// Serve accepts connections on listener until Close. It returns nil after a
// clean shutdown.
func (srv *Server) Serve(listener net.Listener) error {
	if srv.cfg.MaxConns > 0 {
		listener = netutil.LimitListener(listener, srv.cfg.MaxConns)
	}
	srv.lock.Lock()
	if srv.isDying() {
		srv.lock.Unlock()
		listener.Close()
		return ErrServerClosed
	}
	srv.listener = listener
	srv.lock.Unlock()
	log.Infof("Listen on TCP %v", listener.Addr())

	var backoff time.Duration
	for {
		rawClient, err := listener.Accept()
		if err != nil {
			if srv.isDying() {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff < time.Second {
					backoff *= 2
				}
				log.Warnf("accept error: %v; retrying in %v", err, backoff)
				time.Sleep(backoff)
				continue
			}
			return errors.Wrap(err, "accept")
		}
		backoff = 0
		if !srv.track(rawClient) {
			rawClient.Close()
			return nil
		}
		go srv.handle(rawClient)
	}
}

// Addr returns the listening address, or nil before Serve.
func (srv *Server) Addr() net.Addr {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Close stops accepting, closes every live connection and waits for all
// handlers to return. Later calls do nothing.
func (srv *Server) Close() (err error) {
	srv.closeOnce.Do(func() {
		err = srv.shutdown()
	})
	return
}

// Dead is closed once Close has finished.
func (srv *Server) Dead() <-chan struct{} {
	return srv.death.Dead()
}

func (srv *Server) shutdown() error {
	srv.lock.Lock()
	srv.death.Kill(nil)
	srv.cancel()
	var err error
	if srv.listener != nil {
		err = srv.listener.Close()
	}
	for conn := range srv.conns {
		conn.Close()
	}
	srv.lock.Unlock()
	srv.handlers.Wait()
	srv.death.Done()
	return err
}

// Counter returns the shared counter.
func (srv *Server) Counter() *counter.Counter {
	return srv.cfg.Counter
}

func (srv *Server) isDying() bool {
	select {
	case <-srv.death.Dying():
		return true
	default:
		return false
	}
}

func (srv *Server) track(conn net.Conn) bool {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.isDying() {
		return false
	}
	srv.conns[conn] = struct{}{}
	srv.handlers.Add(1)
	return true
}

func (srv *Server) untrack(conn net.Conn) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	delete(srv.conns, conn)
}
