package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	flagAddr      = flag.String("addr", ":5000", "HTTP listen address")
	flagTickMs    = flag.Int("tick_ms", 50, "Simulation step interval in ms")
	flagDropEvery = flag.Int("drop_every_s", 0, "Report a CAN bus drop every N seconds (0 disables)")
	flagDropFor   = flag.Int("drop_for_s", 5, "Drop duration in seconds")
)

func main() {
	flag.Parse()

	cycle := newDriveCycle()
	var connected atomic.Bool
	connected.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; log.Printf("can-simulator: shutdown signal"); cancel() }()

	go runSim(ctx, cycle, &connected, time.Duration(*flagTickMs)*time.Millisecond,
		time.Duration(*flagDropEvery)*time.Second, time.Duration(*flagDropFor)*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/can/latest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		messages := map[string]any{}
		// a dropped bus produces no frames; the endpoint still answers
		if connected.Load() {
			speed, voltage, temp := cycle.readings()
			messages["speed"] = map[string]float64{"value": speed}
			messages["battery_voltage"] = map[string]float64{"value": voltage}
			messages["motor_temp"] = map[string]float64{"value": temp}
		}
		writeJSON(w, map[string]any{"messages": messages})
	})
	mux.HandleFunc("/api/v1/can/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]any{"connected": connected.Load()})
	})

	server := &http.Server{Addr: *flagAddr, Handler: mux}
	go func() {
		log.Printf("can-simulator: serving mock gateway on %s", *flagAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = server.Shutdown(shutCtx)
}

func runSim(ctx context.Context, cycle *driveCycle, connected *atomic.Bool, tick, dropEvery, dropFor time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle.step(tick.Seconds())
			if dropEvery > 0 {
				since := time.Since(start)
				phase := math.Mod(since.Seconds(), (dropEvery + dropFor).Seconds())
				up := phase < dropEvery.Seconds()
				if connected.Load() != up {
					connected.Store(up)
					log.Printf("can-simulator: bus connected=%v", up)
				}
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
