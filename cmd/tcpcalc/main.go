package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/geph-official/tcpcalc/libs/calcserv"
	"github.com/geph-official/tcpcalc/libs/counter"
	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"
	"github.com/vharitonsky/iniflags"
)

var listenAddr string
var initialValue int64
var maxConns int
var idleTimeout time.Duration
var cmdRate float64
var cmdBurst int

var statsAddr string
var statsdAddr string
var pprofAddr string
var useGops bool
var logLevel string

var srv *calcserv.Server

// GitVersion is the build version
var GitVersion string

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	usr, err := user.Current()
	if err != nil {
		log.Println("cannot read current user info, consider using -config=/path/to/cfgfile")
	} else {
		// default config file: $HOME/.config/tcpcalc.conf
		iniflags.SetConfigFile(usr.HomeDir + "/.config/tcpcalc.conf")
		iniflags.SetAllowMissingConfigFile(true)
	}

	flag.StringVar(&listenAddr, "addr", ":4000", "TCP listening address for the counter protocol")
	flag.Int64Var(&initialValue, "initial", 0, "initial counter value")
	flag.IntVar(&maxConns, "maxConns", 0, "maximum simultaneous connections, 0 for unlimited")
	flag.DurationVar(&idleTimeout, "idleTimeout", 0, "close connections idle for this long, 0 to never")
	flag.Float64Var(&cmdRate, "cmdRate", 0, "commands per second allowed per client IP, 0 for unlimited")
	flag.IntVar(&cmdBurst, "cmdBurst", 10, "burst size for -cmdRate")
	flag.StringVar(&statsAddr, "statsAddr", "localhost:4001", "HTTP listener for statistics, empty to disable")
	flag.StringVar(&statsdAddr, "statsdAddr", "", "address of StatsD for gathering statistics, empty to disable")
	flag.StringVar(&pprofAddr, "pprofAddr", "", "HTTP listener for pprof, empty to disable")
	flag.BoolVar(&useGops, "gops", false, "start the gops agent")
	flag.StringVar(&logLevel, "logLevel", "info", "log level (debug, info, warn, error)")
	iniflags.Parse()

	lvl, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("bad -logLevel: %v", err)
	}
	log.SetLevel(lvl)
	pipeLogs()
	if GitVersion == "" {
		GitVersion = "NOVER"
	}
	log.Println("tcpcalc version", GitVersion)

	if useGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatal(err)
		}
	}
	if pprofAddr != "" {
		go func() {
			log.Println(http.ListenAndServe(pprofAddr, nil))
		}()
	}
	initStatsd()

	srv = calcserv.NewServer(calcserv.Config{
		Addr:         listenAddr,
		Counter:      counter.New(initialValue),
		MaxConns:     maxConns,
		IdleTimeout:  idleTimeout,
		CommandRate:  cmdRate,
		CommandBurst: cmdBurst,
		OnCommand:    reportCommand,
		OnConnect:    reportConnect,
		OnDisconnect: reportDisconnect,
	})
	if statsAddr != "" {
		go listenStats()
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		log.Infof("caught %v, shutting down...", sig)
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
	<-srv.Dead()
	log.Infof("final counter value %v", srv.Counter().Read())
}
