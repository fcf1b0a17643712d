// Command launch-monitor runs the impact tracking and flight estimation
// daemon: it ingests ball detections from the camera pipeline, confirms
// impacts against the K-LD2 doppler radar, estimates trajectories, and
// serves the simulator API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fairway-data/launch.monitor/internal/api"
	"github.com/fairway-data/launch.monitor/internal/ballistics"
	"github.com/fairway-data/launch.monitor/internal/config"
	"github.com/fairway-data/launch.monitor/internal/db"
	"github.com/fairway-data/launch.monitor/internal/monitoring"
	"github.com/fairway-data/launch.monitor/internal/radar"
	"github.com/fairway-data/launch.monitor/internal/serialmux"
	"github.com/fairway-data/launch.monitor/internal/timeutil"
	"github.com/fairway-data/launch.monitor/internal/track"
	"github.com/fairway-data/launch.monitor/internal/units"
	"github.com/fairway-data/launch.monitor/internal/version"
	"github.com/fairway-data/launch.monitor/internal/vision"
)

var (
	listen           = flag.String("listen", ":8080", "Listen address")
	dbFile           = flag.String("db", "shots.db", "Path to the shot history database")
	migrationsDir    = flag.String("migrations", "migrations", "Path to the schema migrations directory")
	tuningFile       = flag.String("tuning", "", "Path to a tuning config JSON file (compiled-in defaults when empty)")
	detectionsListen = flag.String("detections-listen", ":5800", "UDP listen address for camera detections")
	radarPort        = flag.String("radar-port", "", "Serial port for the K-LD2 radar (radar disabled when empty)")
	replayFile       = flag.String("replay", "", "Replay detections from a JSON-lines capture file instead of listening")
	replaySpeed      = flag.Float64("replay-speed", 1.0, "Replay pacing multiplier (<=0 for no pacing)")
	speedUnits       = flag.String("units", units.MPH, "Ball speed display units")
	profile          = flag.String("profile", "default", "Profile name to tag recorded shots with")
	devMode          = flag.Bool("dev", false, "Run in dev mode")
	showVersion      = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("launch-monitor %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValidSpeedUnit(*speedUnits) {
		log.Fatalf("Invalid units %q: must be one of %s", *speedUnits, units.GetValidSpeedUnitsString())
	}

	var tuning *config.TuningConfig
	if *tuningFile != "" {
		loaded, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
	} else {
		tuning = config.MustLoadDefaultConfig()
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if _, err := os.Stat(*migrationsDir); err == nil {
		if err := database.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	clock := timeutil.RealClock{}
	ingest := track.NewFrameIngest(tuning.GetIngestCapacity())
	reporter := track.NewReporter()
	estimator := ballistics.NewEstimator(ballistics.EstimatorConfigFromTuning(tuning))

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Radar is optional; without it impact detection runs on vision alone.
	// Dev mode substitutes a mock port so the full radar path runs without
	// hardware attached.
	var speedSource track.SpeedSource
	var serialMuxes []serialmux.SerialMuxInterface
	var lineMux serialmux.SerialMuxInterface
	if *radarPort != "" {
		mux, err := serialmux.NewRealSerialMux(*radarPort, serialmux.PortOptions{})
		if err != nil {
			log.Fatalf("Failed to open radar port: %v", err)
		}
		lineMux = mux
	} else if *devMode {
		port := serialmux.NewTestableSerialPort()
		port.BlockReads = true
		lineMux = serialmux.NewSerialMux(port)
	}
	if lineMux != nil {
		defer lineMux.Close()
		serialMuxes = append(serialMuxes, lineMux)

		kld2 := radar.NewKLD2(lineMux, clock)
		speedSource = kld2

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lineMux.Monitor(ctx); err != nil && err != context.Canceled {
				monitoring.Logf("serial monitor terminated: %v", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := kld2.Initialize(); err != nil {
				monitoring.Logf("radar init failed: %v", err)
			}
			if err := kld2.Run(ctx); err != nil && err != context.Canceled {
				monitoring.Logf("radar routine terminated: %v", err)
			}
		}()
	}

	tracker := track.New(track.ConfigFromTuning(tuning), ingest, reporter, estimator, speedSource, clock)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tracker.Run(ctx); err != nil && err != context.Canceled {
			monitoring.Logf("tracker terminated: %v", err)
		}
	}()

	// Detection source: a recorded capture in replay mode, the UDP listener
	// otherwise.
	if *replayFile != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := vision.Replay(ctx, *replayFile, ingest, clock, *replaySpeed); err != nil && err != context.Canceled {
				monitoring.Logf("replay terminated: %v", err)
			}
		}()
	} else {
		listener := vision.NewListener(*detectionsListen, ingest)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Run(ctx); err != nil && err != context.Canceled {
				monitoring.Logf("detection listener terminated: %v", err)
			}
		}()
	}

	server := api.NewServer(tracker, database, *speedUnits, *profile)

	// Shot recorder: persists trajectories as they are reported.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil && err != context.Canceled {
			monitoring.Logf("shot recorder terminated: %v", err)
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()

		// mount the admin debugging routes
		database.AttachAdminRoutes(mux)
		for _, sm := range serialMuxes {
			sm.AttachAdminRoutes(mux)
		}

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			monitoring.Logf("listening on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}
	}()

	if *devMode {
		monitoring.Logf("running in dev mode")
	}

	wg.Wait()
	monitoring.Logf("Graceful shutdown complete")
}
