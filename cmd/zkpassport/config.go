package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/zkpassport/circuits"
)

const (
	defaultAPIHost        = "0.0.0.0"
	defaultAPIPort        = 9090
	defaultLogLevel       = "info"
	defaultLogOutput      = "stdout"
	defaultProverBackend  = backendProcess
	defaultProverTimeout  = 10 * time.Minute
	defaultProverWorkers  = 1
	defaultWitnessBin     = "snarkjs"
	artifactsDownloadTime = 20 * time.Minute

	backendRapidsnark = "rapidsnark"
	backendProcess    = "process"
)

// Config holds the application configuration
type Config struct {
	API        APIConfig       `mapstructure:"api"`
	Log        LogConfig       `mapstructure:"log"`
	Artifacts  ArtifactsConfig `mapstructure:"artifacts"`
	Prover     ProverConfig    `mapstructure:"prover"`
	MasterList string          `mapstructure:"masterlist"`
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// ArtifactsConfig holds where the circuit artifacts are stored and
// downloaded from
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
	URL string `mapstructure:"url"`
}

// ProverConfig holds the proving backend configuration
type ProverConfig struct {
	Backend    string        `mapstructure:"backend"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Workers    int           `mapstructure:"workers"`
	WitnessBin string        `mapstructure:"witness-bin"`
	ProverBin  string        `mapstructure:"prover-bin"`
	WorkDir    string        `mapstructure:"workdir"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig(args []string) (*Config, *flag.FlagSet, error) {
	v := viper.New()
	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("artifacts.dir", circuits.BaseDir)
	v.SetDefault("prover.backend", defaultProverBackend)
	v.SetDefault("prover.timeout", defaultProverTimeout)
	v.SetDefault("prover.workers", defaultProverWorkers)
	v.SetDefault("prover.witness-bin", defaultWitnessBin)

	fs := flag.NewFlagSet("zkpassport", flag.ContinueOnError)
	fs.StringP("api.host", "a", defaultAPIHost, "API host")
	fs.IntP("api.port", "p", defaultAPIPort, "API port")
	fs.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	fs.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	fs.StringP("artifacts.dir", "d", circuits.BaseDir, "directory holding the circuit artifacts")
	fs.String("artifacts.url", "", "base URL the circuit artifacts are downloaded from")
	fs.StringP("prover.backend", "b", defaultProverBackend,
		fmt.Sprintf("proving backend (%s or %s)", backendProcess, backendRapidsnark))
	fs.DurationP("prover.timeout", "t", defaultProverTimeout, "maximum time of a single proof (i.e 10m or 1h)")
	fs.IntP("prover.workers", "w", defaultProverWorkers, "number of proofs computed in parallel")
	fs.String("prover.witness-bin", defaultWitnessBin, "snarkjs executable used for the witness and verification")
	fs.String("prover.prover-bin", "", "prover executable, rapidsnark or snarkjs (defaults to the witness binary)")
	fs.String("prover.workdir", "", "directory for the temporary prover files (defaults to the system one)")
	fs.StringP("masterlist", "m", "", "ICAO Master List (DER) to authenticate and trust at start up")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zkpassport [flags] [artifacts]\n\n")
		fmt.Fprintf(os.Stderr, "Serves the passport verification API. With the artifacts command it\n")
		fmt.Fprintf(os.Stderr, "downloads the missing circuit artifacts and exits.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dashes (-) and dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, ZKPASSPORT_API_PORT or ZKPASSPORT_PROVER_WITNESS_BIN\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Download the circuit artifacts\n")
		fmt.Fprintf(os.Stderr, "  zkpassport --artifacts.url=https://example.org/circuits artifacts\n\n")
		fmt.Fprintf(os.Stderr, "  # Serve with rapidsnark as prover and a trusted master list\n")
		fmt.Fprintf(os.Stderr, "  zkpassport --prover.prover-bin=rapidsnark --masterlist=ICAO_ml.der\n")
	}
	fs.SortFlags = false
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	v.SetEnvPrefix("ZKPASSPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, fs, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	switch cfg.Prover.Backend {
	case backendProcess, backendRapidsnark:
	default:
		return fmt.Errorf("invalid prover backend %q, use %s or %s",
			cfg.Prover.Backend, backendProcess, backendRapidsnark)
	}
	if cfg.Prover.Workers < 1 {
		return fmt.Errorf("prover workers must be at least 1")
	}
	if cfg.Prover.Timeout <= 0 {
		return fmt.Errorf("prover timeout must be positive")
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid API port %d", cfg.API.Port)
	}
	return nil
}
