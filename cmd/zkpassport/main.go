package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/zkpassport/api"
	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/config"
	"github.com/vocdoni/zkpassport/icao"
	"github.com/vocdoni/zkpassport/log"
	"github.com/vocdoni/zkpassport/prover"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, fs, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	circuits.BaseDir = cfg.Artifacts.Dir
	artifacts := config.AllRegisterArtifacts(cfg.Artifacts.Dir, cfg.Artifacts.URL)

	switch fs.Arg(0) {
	case "":
	case "artifacts":
		if err := downloadArtifacts(artifacts); err != nil {
			log.Fatalf("Failed to download artifacts: %v", err)
		}
		return
	default:
		fs.Usage()
		os.Exit(1)
	}

	ml, err := loadMasterList(cfg.MasterList)
	if err != nil {
		log.Fatalf("Failed to load the master list: %v", err)
	}
	for v, ca := range artifacts {
		if err := ca.Check(); err != nil {
			log.Warnw("circuit artifacts missing, proofs will fail", "variant", v.String(), "error", err.Error())
		}
	}

	pipeline := prover.NewPipeline(newBackend(cfg), prover.NewGnarkVerifier(), cfg.Prover.Workers, cfg.Prover.Timeout)
	if _, err := api.New(&api.APIConfig{
		Host:       cfg.API.Host,
		Port:       cfg.API.Port,
		Pipeline:   pipeline,
		Artifacts:  artifacts,
		MasterList: ml,
	}); err != nil {
		log.Fatalf("Failed to start the API: %v", err)
	}
	log.Infow("zkpassport started",
		"backend", cfg.Prover.Backend,
		"workers", cfg.Prover.Workers,
		"timeout", cfg.Prover.Timeout.String(),
		"artifacts", cfg.Artifacts.Dir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

func newBackend(cfg *Config) prover.Backend {
	if cfg.Prover.Backend == backendRapidsnark {
		return prover.RapidsnarkBackend{}
	}
	return &prover.ProcessBackend{
		WitnessBin: cfg.Prover.WitnessBin,
		ProverBin:  cfg.Prover.ProverBin,
		Timeout:    cfg.Prover.Timeout,
		WorkDir:    cfg.Prover.WorkDir,
	}
}

// loadMasterList reads and authenticates the Master List at path. An empty
// path means no Master List.
func loadMasterList(path string) (*icao.MasterList, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ml, err := icao.ParseMasterList(data)
	if err != nil {
		return nil, err
	}
	report, err := ml.Authenticate(time.Now())
	if err != nil {
		return nil, err
	}
	if !report.Valid() {
		return nil, fmt.Errorf("master list not authentic: %+v", report)
	}
	log.Infow("master list authenticated", "path", path, "members", report.MemberCount)
	return ml, nil
}

// downloadArtifacts downloads the missing artifacts of every variant
// concurrently.
func downloadArtifacts(artifacts map[prover.Variant]*circuits.CircuitArtifacts) error {
	ctx, cancel := context.WithTimeout(context.Background(), artifactsDownloadTime)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for v, ca := range artifacts {
		g.Go(func() error {
			log.Infow("downloading circuit artifacts", "variant", v.String())
			if err := ca.DownloadAll(ctx); err != nil {
				return fmt.Errorf("%s circuit: %w", v, err)
			}
			return nil
		})
	}
	return g.Wait()
}
