package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bonfire.gg/internal/config"
	"bonfire.gg/internal/engine"
	persistlog "bonfire.gg/internal/persistence/log"
	"bonfire.gg/internal/players"
	"bonfire.gg/internal/render"
	"bonfire.gg/internal/transport/observer"
	"bonfire.gg/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		configPath  = flag.String("config", "./configs/bonfire.yaml", "config path (empty for defaults)")
		disableDB   = flag.Bool("disable_db", false, "keep claims in memory only")
		remoteMaps  = flag.Bool("observer_remote", false, "allow non-loopback map observers")
		disableLogs = flag.Bool("disable_audit", false, "disable audit and session logs")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	wsLogger := log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)
	obsLogger := log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds)

	path := strings.TrimSpace(*configPath)
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Printf("config not found (%s); using defaults", path)
			path = ""
		}
	}
	settings, err := config.Load(path)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	st, backend, err := openRuntimeStore(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	reg, known, err := loadState(ctx, st)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Printf("store=%s claims=%d players=%d", backend, reg.Len(), len(known))

	obsSrv := observer.NewServer(settings.Style(), obsLogger)
	obsSrv.AllowRemote = *remoteMaps

	ecfg := engine.Config{
		Registry:   reg,
		Store:      st,
		Directory:  players.NewDirectory(st, time.Now, known),
		Settings:   settings,
		ConfigPath: path,
		OnReload: func(c config.Config) {
			obsSrv.SetMarkerSet(c.Render.MarkerSetID, c.Render.MarkerSetLabel)
		},
		Sinks:  []render.Sink{obsSrv},
		Logger: logger,
	}
	if !*disableLogs {
		auditLog := persistlog.NewAuditLogger(*dataDir)
		sessionLog := persistlog.NewSessionLogger(*dataDir)
		defer auditLog.Close()
		defer sessionLog.Close()
		ecfg.Audit = auditLog
		ecfg.Sessions = sessionLog
	}
	eng, err := engine.New(ecfg)
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	logger.Printf("published %d claim markers", eng.Publish())

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(eng, obsSrv))
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(struct {
			Store     string         `json:"store"`
			Metrics   engine.Metrics `json:"metrics"`
			Observers int            `json:"observers"`
		}{backend, eng.Metrics(), obsSrv.Subscribers()})
	})
	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/v1/ws", ws.NewServer(eng, wsLogger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-engineDone
	logger.Printf("stopped")
}

func metricsHandler(eng *engine.Engine, obs *observer.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := eng.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP bonfire_claims Current number of claims.\n")
		fmt.Fprintf(rw, "# TYPE bonfire_claims gauge\n")
		fmt.Fprintf(rw, "bonfire_claims %d\n", m.Claims)

		fmt.Fprintf(rw, "# HELP bonfire_players_online Players currently online.\n")
		fmt.Fprintf(rw, "# TYPE bonfire_players_online gauge\n")
		fmt.Fprintf(rw, "bonfire_players_online %d\n", m.Online)

		fmt.Fprintf(rw, "# HELP bonfire_engine_queue_depth Requests waiting for the engine.\n")
		fmt.Fprintf(rw, "# TYPE bonfire_engine_queue_depth gauge\n")
		fmt.Fprintf(rw, "bonfire_engine_queue_depth %d\n", m.QueueDepth)

		fmt.Fprintf(rw, "# HELP bonfire_requests_total Requests handled by outcome.\n")
		fmt.Fprintf(rw, "# TYPE bonfire_requests_total counter\n")
		fmt.Fprintf(rw, "bonfire_requests_total{outcome=%q} %d\n", "ok", m.Requests-m.Rejected-m.Failed)
		fmt.Fprintf(rw, "bonfire_requests_total{outcome=%q} %d\n", "rejected", m.Rejected)
		fmt.Fprintf(rw, "bonfire_requests_total{outcome=%q} %d\n", "failed", m.Failed)

		fmt.Fprintf(rw, "# HELP bonfire_observers Connected map observers.\n")
		fmt.Fprintf(rw, "# TYPE bonfire_observers gauge\n")
		fmt.Fprintf(rw, "bonfire_observers %d\n", obs.Subscribers())
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
