package main

import (
	"bufio"
	"flag"
	"io"
	"net"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/vharitonsky/iniflags"
	"golang.org/x/net/proxy"
)

var serverAddr string
var socksAddr string

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: false,
	})
	flag.StringVar(&serverAddr, "addr", "localhost:4000", "address of the tcpcalc server")
	flag.StringVar(&socksAddr, "socks", "", "if set, connect through this SOCKS5 proxy")
	iniflags.Parse()

	conn, err := dial()
	if err != nil {
		log.Fatalf("cannot connect to %v: %v", serverAddr, err)
	}
	defer conn.Close()
	log.Debugf("connected to %v", conn.RemoteAddr())
	if err := session(conn, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func dial() (net.Conn, error) {
	if socksAddr == "" {
		return net.Dial("tcp", serverAddr)
	}
	sks, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}
	return sks.Dial("tcp", serverAddr)
}

// session sends every line of in as a command and copies replies to out.
// It returns once the server hangs up or in is exhausted.
func session(conn net.Conn, in io.Reader, out io.Writer) error {
	replies := make(chan error, 1)
	go func() {
		_, err := io.Copy(out, bufio.NewReader(conn))
		replies <- err
	}()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if _, err := io.WriteString(conn, scanner.Text()+"\r\n"); err != nil {
			return <-replies
		}
		if scanner.Text() == "EXIT" {
			return <-replies
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
		return <-replies
	}
	return nil
}
