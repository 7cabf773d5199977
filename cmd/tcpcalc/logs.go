package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	log "github.com/sirupsen/logrus"
)

const maxLogLines = 1000

var logLines []string
var logLock sync.Mutex

// pipeLogs tees everything logrus writes into the buffer served at /logs.
func pipeLogs() {
	logPipeR, logPipeW, err := os.Pipe()
	if err != nil {
		log.Warnln("cannot capture logs:", err)
		return
	}
	log.SetOutput(logPipeW)
	go func() {
		buffi := bufio.NewReader(logPipeR)
		for {
			line, err := buffi.ReadString('\n')
			if err != nil {
				return
			}
			fmt.Fprint(os.Stderr, line)
			recordLogLine(line)
		}
	}()
}

func recordLogLine(line string) {
	logLock.Lock()
	defer logLock.Unlock()
	logLines = append(logLines, stripansi.Strip(strings.TrimSpace(line)))
	if len(logLines) > maxLogLines {
		logLines = logLines[len(logLines)-maxLogLines:]
	}
}

func recentLogLines() []string {
	logLock.Lock()
	defer logLock.Unlock()
	return append([]string(nil), logLines...)
}
