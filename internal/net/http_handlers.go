package net

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	server "cart-flipper/server"
	"cart-flipper/server/internal/observability"
	"cart-flipper/server/internal/telemetry"
)

type HTTPHandlerConfig struct {
	Logger        telemetry.Logger
	Observability observability.Config
}

func NewHTTPHandler(authority *server.Authority, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := struct {
			Status     string        `json:"status"`
			ServerTime int64         `json:"serverTime"`
			Authority  uint64        `json:"authority"`
			Version    string        `json:"version"`
			TickRate   int           `json:"tickRate"`
			Snapshot   server.Status `json:"snapshot"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Authority:  authority.ID(),
			Version:    authority.Guard().Version(),
			TickRate:   authority.TickRate(),
			Snapshot:   authority.Status(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			logger.Printf("failed to encode diagnostics: %v", err)
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/ws", authority.ServeWS)

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
