package calcserv

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geph-official/tcpcalc/libs/counter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	t    *testing.T
	conn net.Conn
	rd   *bufio.Reader
}

func startServer(t *testing.T, cfg Config) (*Server, chan error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer(cfg)
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(listener)
	}()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		srv.Close()
	})
	return srv, done
}

func dial(t *testing.T, srv *Server) *testClient {
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})
	return &testClient{t: t, conn: conn, rd: bufio.NewReader(conn)}
}

func (tc *testClient) send(line string) {
	_, err := io.WriteString(tc.conn, line+"\r\n")
	require.NoError(tc.t, err)
}

func (tc *testClient) recv() string {
	tc.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := tc.rd.ReadString('\n')
	require.NoError(tc.t, err)
	return line
}

func (tc *testClient) call(line string) string {
	tc.send(line)
	return tc.recv()
}

func (tc *testClient) get() int64 {
	reply := tc.call("GET")
	require.Regexp(tc.t, `^-?[0-9]+\n$`, reply)
	n, err := strconv.ParseInt(reply[:len(reply)-1], 10, 64)
	require.NoError(tc.t, err)
	return n
}

func (tc *testClient) expectEOF() {
	tc.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := tc.rd.ReadString('\n')
	assert.Equal(tc.t, io.EOF, err)
}

func TestGetRespondsWithNumber(t *testing.T) {
	srv, _ := startServer(t, Config{})
	assert.Equal(t, "0\n", dial(t, srv).call("GET"))
}

func TestAdd(t *testing.T) {
	srv, _ := startServer(t, Config{Counter: counter.New(100)})
	cl := dial(t, srv)
	first := cl.get()
	assert.Equal(t, fmt.Sprintf("%d\n", first+1), cl.call("ADD 1"))
	assert.Equal(t, first+1, cl.get())
	assert.Equal(t, "96\n", cl.call("ADD -5"))
}

func TestSubtract(t *testing.T) {
	srv, _ := startServer(t, Config{})
	cl := dial(t, srv)
	first := cl.get()
	assert.Equal(t, fmt.Sprintf("%d\n", first-1), cl.call("SUBTRACT 1"))
	assert.Equal(t, first-1, cl.get())
	assert.Equal(t, "9\n", cl.call("SUBTRACT -10"))
}

func TestSimultaneousConnections(t *testing.T) {
	srv, _ := startServer(t, Config{})
	first := dial(t, srv)
	second := dial(t, srv)
	first.send("GET")
	second.send("GET")
	assert.Equal(t, "0\n", first.recv())
	assert.Equal(t, "0\n", second.recv())

	first.call("ADD 3")
	assert.Equal(t, "3\n", second.call("GET"))
}

func TestExitClosesConnection(t *testing.T) {
	srv, _ := startServer(t, Config{})
	cl := dial(t, srv)
	cl.send("EXIT")
	cl.expectEOF()
}

func TestInvalidCommands(t *testing.T) {
	srv, _ := startServer(t, Config{Counter: counter.New(5)})
	cl := dial(t, srv)
	for _, line := range []string{"INVALID", "ADD S", "SUBTRACT S", "ADD 1.1", "SUBTRACT 1.1", "get", "GET 1", ""} {
		assert.Equal(t, "invalid command\n", cl.call(line), "%q", line)
		assert.Equal(t, int64(5), cl.get(), "%q", line)
	}
}

func TestOverlongLineIsInvalid(t *testing.T) {
	srv, _ := startServer(t, Config{Counter: counter.New(3)})
	cl := dial(t, srv)
	done := make(chan error, 1)
	go func() {
		_, err := io.WriteString(cl.conn, "ADD "+strings.Repeat("1", 70000)+"\r\n")
		done <- err
	}()
	assert.Equal(t, "invalid command\n", cl.recv())
	require.NoError(t, <-done)
	assert.Equal(t, int64(3), cl.get())
	assert.Equal(t, uint64(1), srv.Stats().Commands["invalid"])
}

func TestPipelinedCommands(t *testing.T) {
	srv, _ := startServer(t, Config{})
	cl := dial(t, srv)
	_, err := io.WriteString(cl.conn, "ADD 2\r\nADD 3\r\nBOGUS\r\nGET\r\nEXIT\r\n")
	require.NoError(t, err)
	for _, want := range []string{"2\n", "5\n", "invalid command\n", "5\n"} {
		assert.Equal(t, want, cl.recv())
	}
	cl.expectEOF()
}

func TestConcurrentAdds(t *testing.T) {
	const clients = 20
	const adds = 50
	srv, _ := startServer(t, Config{Counter: counter.New(-7)})
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		cl := dial(t, srv)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < adds; j++ {
				cl.send("ADD 1")
				if _, err := cl.rd.ReadString('\n'); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(-7+clients*adds), dial(t, srv).get())
	assert.Equal(t, uint64(clients*adds), srv.Stats().Commands["ADD"])
}

func TestDisconnectDoesNotAffectOthers(t *testing.T) {
	srv, _ := startServer(t, Config{})
	stayer := dial(t, srv)
	leaver := dial(t, srv)
	leaver.send("ADD 4")
	leaver.conn.Close()
	assert.Eventually(t, func() bool { return srv.Counter().Read() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(4), stayer.get())
}

func TestCloseDropsClients(t *testing.T) {
	srv, done := startServer(t, Config{})
	cl := dial(t, srv)
	cl.get()
	require.NoError(t, srv.Close())
	cl.expectEOF()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	<-srv.Dead()
	assert.NoError(t, srv.Close())
}

func TestServeAfterClose(t *testing.T) {
	srv := NewServer(Config{})
	srv.Close()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, ErrServerClosed, srv.Serve(listener))
}

func TestListenAndServeBindFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	srv := NewServer(Config{Addr: listener.Addr().String()})
	assert.Error(t, srv.ListenAndServe())
}

func TestIdleTimeout(t *testing.T) {
	srv, _ := startServer(t, Config{IdleTimeout: 50 * time.Millisecond})
	cl := dial(t, srv)
	cl.get()
	cl.expectEOF()
}

func TestMaxConns(t *testing.T) {
	srv, _ := startServer(t, Config{MaxConns: 1})
	first := dial(t, srv)
	first.get()
	second := dial(t, srv)
	second.send("GET")
	second.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, err := second.rd.ReadString('\n')
	require.Error(t, err)
	first.send("EXIT")
	first.expectEOF()
	assert.Equal(t, "0\n", second.recv())
}

func TestCommandRate(t *testing.T) {
	srv, _ := startServer(t, Config{CommandRate: 20, CommandBurst: 1})
	cl := dial(t, srv)
	start := time.Now()
	for i := 0; i < 5; i++ {
		cl.get()
	}
	assert.True(t, time.Since(start) >= 150*time.Millisecond)
}

func TestStatsAndHooks(t *testing.T) {
	var lock sync.Mutex
	var opened, closed int
	verbs := make(map[string]int)
	srv, _ := startServer(t, Config{
		OnConnect: func() {
			lock.Lock()
			defer lock.Unlock()
			opened++
		},
		OnDisconnect: func(time.Duration) {
			lock.Lock()
			defer lock.Unlock()
			closed++
		},
		OnCommand: func(verb string, _ time.Duration) {
			lock.Lock()
			defer lock.Unlock()
			verbs[verb]++
		},
	})
	cl := dial(t, srv)
	cl.call("ADD 2")
	cl.call("nope")
	cl.get()
	cl.send("EXIT")
	cl.expectEOF()

	assert.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return closed == 1
	}, time.Second, 5*time.Millisecond)
	st := srv.Stats()
	assert.Equal(t, int64(0), st.ActiveConns)
	assert.Equal(t, int64(2), st.Value)
	assert.Equal(t, uint64(1), st.TotalConns)
	assert.Equal(t, 1, st.RecentClients)
	assert.Equal(t, map[string]uint64{"ADD": 1, "invalid": 1, "GET": 1, "EXIT": 1}, st.Commands)

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
	assert.Equal(t, map[string]int{"ADD": 1, "invalid": 1, "GET": 1, "EXIT": 1}, verbs)
}

func BenchmarkRoundTrip(b *testing.B) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	srv := NewServer(Config{})
	go srv.Serve(listener)
	defer srv.Close()
	conn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	rd := bufio.NewReader(conn)
	for i := 0; i < b.N; i++ {
		io.WriteString(conn, "ADD 1\r\n")
		if _, err := rd.ReadString('\n'); err != nil {
			panic(err)
		}
	}
}
