package buffconn

import (
	"bufio"
	"errors"
	"net"
	"time"

	pool "github.com/libp2p/go-buffer-pool"
)

// MaxLineLength bounds a single input line, terminator included.
const MaxLineLength = 65536

// ErrLineTooLong is returned by ReadLine for a line longer than MaxLineLength.
// The line has been consumed, so the next ReadLine starts on the following one.
var ErrLineTooLong = errors.New("line too long")

// BuffConn wraps a net.Conn with read buffering and line framing.
// Lines are read CRLF-terminated and written LF-terminated.
type BuffConn struct {
	wire      net.Conn
	bufReader *bufio.Reader
}

// New creates a new BuffConn.
func New(wire net.Conn) *BuffConn {
	return &BuffConn{
		wire:      wire,
		bufReader: bufio.NewReaderSize(wire, MaxLineLength),
	}
}

// ReadLine reads one line and strips its "\r\n" (or bare "\n"). A trailing
// fragment with no newline before EOF is discarded and io.EOF returned.
func (bc *BuffConn) ReadLine() (string, error) {
	line, err := bc.bufReader.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		for err == bufio.ErrBufferFull {
			_, err = bc.bufReader.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}
		return "", ErrLineTooLong
	}
	if err != nil {
		return "", err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}

// WriteLine writes s followed by "\n" in a single write.
func (bc *BuffConn) WriteLine(s string) error {
	buf := pool.Get(len(s) + 1)
	defer pool.Put(buf)
	copy(buf, s)
	buf[len(s)] = '\n'
	_, err := bc.wire.Write(buf)
	return err
}

func (bc *BuffConn) Close() error {
	return bc.wire.Close()
}

func (bc *BuffConn) SetReadDeadline(t time.Time) error {
	return bc.wire.SetReadDeadline(t)
}

func (bc *BuffConn) RemoteAddr() net.Addr {
	return bc.wire.RemoteAddr()
}
