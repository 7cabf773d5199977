package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

func newStatsRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", handleStats).Methods("GET")
	r.HandleFunc("/logs", handleLogs).Methods("GET")
	return r
}

func listenStats() {
	statsServ := &http.Server{
		Addr:         statsAddr,
		Handler:      newStatsRouter(),
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}
	log.Infof("stats on %v", statsAddr)
	if err := statsServ.ListenAndServe(); err != nil {
		log.Errorln("stats listener died:", err)
	}
}

func handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, srv.Stats())
}

func handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, recentLogLines())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Add("Access-Control-Allow-Origin", "*")
	bts, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Add("content-type", "application/json")
	w.Write(bts)
}
