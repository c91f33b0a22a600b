package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	helixnats "github.com/HELIXFACTORY/internal/nats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher: embedded NATS, dashboard HTTP server, task orchestrator",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	log.Println("===============================================")
	log.Println("  HELIXFACTORY - Agent Build, Registry & Dispatch")
	log.Println("===============================================")
	log.Printf("[MAIN] Server port: %d", cfg.Server.Port)
	log.Printf("[MAIN] NATS port: %d", cfg.Server.NATSPort)
	log.Printf("[MAIN] LLM endpoint: %s", cfg.LLM.Endpoint)

	mem, err := newMemoryManager(cfg)
	if err != nil {
		return err
	}
	defer mem.Close()
	log.Println("[MEMORY] episodic/semantic stores opened")

	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	natsOpts := &server.Options{
		Port:     cfg.Server.NATSPort,
		HTTPPort: -1,
		NoLog:    true,
		NoSigs:   true,
	}
	natsServer, err := server.NewServer(natsOpts)
	if err != nil {
		return fmt.Errorf("[MAIN] failed to create NATS server: %w", err)
	}
	go natsServer.Start()
	if !natsServer.ReadyForConnections(5 * time.Second) {
		return fmt.Errorf("[MAIN] NATS server failed to start in time")
	}
	log.Printf("[MAIN] embedded NATS server started on port %d", cfg.Server.NATSPort)

	natsURL := fmt.Sprintf("nats://localhost:%d", cfg.Server.NATSPort)
	natsClient, err := helixnats.NewClient(natsURL, "orchestrator")
	if err != nil {
		return fmt.Errorf("[MAIN] failed to connect orchestrator NATS client: %w", err)
	}
	defer natsClient.Close()

	pipeline := newPipeline(cfg, mem)
	orch := newOrchestrator(cfg, mem, reg, pipeline, natsClient)
	log.Println("[ORCH] orchestrator wired (registry + build pipeline + executors)")

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/memory/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(mem.GetStats()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/api/tasks/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		taskText := r.URL.Query().Get("task")
		if taskText == "" {
			http.Error(w, "task parameter required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
		defer cancel()

		result, err := orch.Run(ctx, taskText)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			log.Printf("[MAIN] failed to encode task result: %v", err)
		}
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		log.Printf("[MAIN] HTTP server starting on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[MAIN] HTTP server error: %v", err)
		}
	}()

	log.Println("===============================================")
	log.Printf("  HELIXFACTORY ready!")
	log.Printf("  Dashboard: http://localhost:%d", cfg.Server.Port)
	log.Printf("  Health:    http://localhost:%d/health", cfg.Server.Port)
	log.Printf("  Metrics:   http://localhost:%d/metrics", cfg.Server.Port)
	log.Println("===============================================")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[MAIN] shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[MAIN] HTTP server shutdown error: %v", err)
	}
	natsServer.Shutdown()
	mem.Consolidate()

	log.Println("[MAIN] HELIXFACTORY shutdown complete")
	return nil
}
