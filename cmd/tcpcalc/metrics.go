package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	statsd "github.com/etsy/statsd/examples/go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var statClient *statsd.StatsdClient
var statPrefix string

var reportRL = rate.NewLimiter(20, 10)

func initStatsd() {
	if statsdAddr == "" {
		return
	}
	hostname, err := os.Hostname()
	if err != nil {
		log.Warnln("no hostname, StatsD disabled:", err)
		return
	}
	z, err := net.ResolveUDPAddr("udp", statsdAddr)
	if err != nil {
		log.Fatalf("bad -statsdAddr: %v", err)
	}
	statPrefix = fmt.Sprintf("tcpcalc.%v.", strings.Replace(hostname, ".", "_", -1))
	statClient = statsd.New(z.IP.String(), z.Port)
	log.Infof("reporting to StatsD at %v", z)
}

func reportCommand(verb string, elapsed time.Duration) {
	if statClient == nil {
		return
	}
	statClient.Increment(statPrefix + "cmd." + verb)
	if reportRL.Allow() {
		// sub-millisecond, so report microseconds
		statClient.Timing(statPrefix+"cmd."+verb+".us", elapsed.Microseconds())
	}
}

func reportConnect() {
	if statClient == nil {
		return
	}
	statClient.Increment(statPrefix + "conn.open")
}

func reportDisconnect(lifetime time.Duration) {
	if statClient == nil {
		return
	}
	statClient.Increment(statPrefix + "conn.close")
	if reportRL.Allow() {
		statClient.Timing(statPrefix+"conn.lifetime", lifetime.Milliseconds())
	}
}
