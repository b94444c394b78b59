package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ankesh2004/go-commun/internal/config"
	"github.com/Ankesh2004/go-commun/internal/storage"
	"github.com/Ankesh2004/go-commun/pkg/commun"
	"github.com/Ankesh2004/go-commun/pkg/metrics"
	"github.com/Ankesh2004/go-commun/pkg/p2p"
)

// newTransportFunc builds transports with the discovery settings from cfg.
func newTransportFunc(cfg *config.Config, log *slog.Logger) func(p2p.Type, string) (p2p.Transport, error) {
	return func(typ p2p.Type, addr string) (p2p.Transport, error) {
		stream := p2p.TCPTransportOptions{
			ListenAddr:        addr,
			BroadcastInterval: cfg.BroadcastInterval,
			DiscoveryPort:     cfg.DiscoveryPort,
			Logger:            log,
		}
		switch typ {
		case p2p.TCP:
			return p2p.NewTCPTransport(stream), nil
		case p2p.WebSocket:
			return p2p.NewWSTransport(p2p.WSTransportOptions{ListenAddr: addr, Stream: stream, Logger: log}), nil
		}
		return p2p.New(typ, addr)
	}
}

func newStore(cfg *config.Config) commun.FileStore {
	if cfg.Storage.Kind == "s3" {
		client := storage.NewS3Client(storage.S3Config{
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.PathStyle,
		})
		return storage.NewS3Store(client, cfg.Storage.Bucket, cfg.Storage.Prefix)
	}
	return storage.NewDirStore(cfg.Storage.Dir)
}

// engineOptions turns cfg into engine options. The returned registry holds
// the node's collectors.
func engineOptions(cfg *config.Config) (commun.Options, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	log := slog.Default()
	return commun.Options{
		SendTimeout:  cfg.SendTimeout,
		PingInterval: cfg.PingInterval,
		MaxPingLoss:  cfg.MaxPingLoss,
		RecvDir:      cfg.Storage.Dir,
		Store:        newStore(cfg),
		Logger:       log,
		Metrics:      metrics.New(metrics.Options{Registry: reg}),
		NewTransport: newTransportFunc(cfg, log),
	}, reg
}

type nodeStatus struct {
	Role      string `json:"role"`
	Transport string `json:"transport"`
	Addr      string `json:"addr"`
	Remote    string `json:"remote,omitempty"`
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
	Busy      bool   `json:"busy"`
}

func snapshot(role string, e *commun.Engine) func() nodeStatus {
	return func() nodeStatus {
		return nodeStatus{
			Role:      role,
			Transport: cfg.TransportType().String(),
			Addr:      e.Addr(),
			Remote:    e.RemoteAddr(),
			Running:   e.IsRunning(),
			Connected: e.IsConnected(),
			Busy:      e.Busy(),
		}
	}
}

func statusRouter(reg *prometheus.Registry, status func() nodeStatus) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status())
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

// serveStatus runs the status server when addr is set. The returned func
// shuts it down.
func serveStatus(addr string, h http.Handler) func() {
	if addr == "" {
		return func() {}
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server failed", "addr", addr, "err", err)
		}
	}()
	slog.Info("status server listening", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func printInteract(label string, in commun.Interact) {
	b, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		fmt.Printf("\n<<< %s (unprintable: %v)\n", label, err)
		return
	}
	fmt.Printf("\n<<< %s\n%s\n", label, b)
}

func readInteract(path string) (commun.Interact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return commun.JSONCodec{}.Unmarshal(data)
}

func sharedCallbacks() commun.Callbacks {
	return commun.Callbacks{
		OnStarted:      func(addr string) { fmt.Printf("\n<<< started on %s\n", addr) },
		OnStopped:      func() { fmt.Println("\n<<< stopped") },
		OnConnected:    func(remote string) { fmt.Printf("\n<<< connected to %s\n", remote) },
		OnDisconnected: func() { fmt.Println("\n<<< disconnected") },
		OnReqInteract:  func(in commun.Interact) { printInteract("interact request", in) },
		OnRspInteract:  func(in commun.Interact) { printInteract("interact response", in) },
	}
}
