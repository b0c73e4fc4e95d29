package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"fleettrack/internal/api"
	"fleettrack/internal/config"
	"fleettrack/internal/metrics"
	"fleettrack/internal/sim"
)

func main() {
	cfgPath := flag.String("config", "trackerd.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	metrics.RegisterDefault()

	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	srv.Notifier.Start()

	simCtx, simCancel := context.WithCancel(context.Background())
	defer simCancel()
	simDone := make(chan struct{})
	close(simDone)
	if n, _ := strconv.Atoi(os.Getenv("SIM_VEHICLES")); n > 0 {
		fps := 10.0
		if v, err := strconv.ParseFloat(os.Getenv("SIM_FPS"), 64); err == nil && v > 0 {
			fps = v
		}
		log.Printf("starting simulator: %d vehicles at %.0f frames/s", n, fps)
		simDone = make(chan struct{})
		go func() {
			defer close(simDone)
			sm := sim.New(n, 40.7128, -74.0060, fps, time.Now().UnixNano())
			if err := sm.Run(simCtx, srv.Tracker); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("simulator stopped: %v", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           logMiddleware(srv.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("tracker listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	simCancel()
	<-simDone
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	srv.Close()
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}
