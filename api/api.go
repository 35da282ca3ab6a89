package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/zkpassport/circuits"
	"github.com/vocdoni/zkpassport/icao"
	"github.com/vocdoni/zkpassport/log"
	"github.com/vocdoni/zkpassport/prover"
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host string
	Port int
	// Pipeline proves the registration circuits. Without it the proof
	// endpoint answers 503.
	Pipeline *prover.Pipeline
	// Artifacts are the circuit files of each variant.
	Artifacts map[prover.Variant]*circuits.CircuitArtifacts
	// MasterList, optional, is the authenticated ICAO Master List used to
	// check that a CSCA is a member of the trusted set.
	MasterList *icao.MasterList
	// Now returns the time certificates are validated at, time.Now when nil.
	Now func() time.Time
}

// API type represents the passport verification API HTTP server.
type API struct {
	router     *chi.Mux
	pipeline   *prover.Pipeline
	artifacts  map[prover.Variant]*circuits.CircuitArtifacts
	masterList *icao.MasterList
	cscaTree   *icao.MerkleTree
	now        func() time.Time
}

// New creates a new API instance with the given configuration and starts
// the HTTP server.
func New(conf *APIConfig) (*API, error) {
	a, err := Build(conf)
	if err != nil {
		return nil, err
	}
	go func() {
		log.Infow("Starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Build creates the API instance and its router without serving it.
func Build(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	a := &API{
		pipeline:   conf.Pipeline,
		artifacts:  conf.Artifacts,
		masterList: conf.MasterList,
		now:        conf.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.masterList != nil {
		members, err := a.masterList.Members()
		if err != nil {
			return nil, fmt.Errorf("could not read the master list members: %w", err)
		}
		a.cscaTree = icao.BuildMerkleTree(members)
		log.Infow("master list loaded", "members", len(members), "root", a.cscaTree.Root().Hex())
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", DG1Endpoint, "method", "POST")
	a.router.Post(DG1Endpoint, a.parseDG1)
	log.Infow("register handler", "endpoint", VerifyEndpoint, "method", "POST")
	a.router.Post(VerifyEndpoint, a.verifyPassport)
	log.Infow("register handler", "endpoint", CertificateKeyEndpoint, "method", "POST")
	a.router.Post(CertificateKeyEndpoint, a.certificateKey)
	log.Infow("register handler", "endpoint", MasterListEndpoint, "method", "GET")
	a.router.Get(MasterListEndpoint, a.masterListInfo)
	log.Infow("register handler", "endpoint", MasterListEndpoint, "method", "POST")
	a.router.Post(MasterListEndpoint, a.authenticateMasterList)
	log.Infow("register handler", "endpoint", MasterListProofEndpoint, "method", "POST")
	a.router.Post(MasterListProofEndpoint, a.masterListProof)
	log.Infow("register handler", "endpoint", InputsEndpoint, "method", "POST")
	a.router.Post(InputsEndpoint, a.circuitInputs)
	log.Infow("register handler", "endpoint", ProofsEndpoint, "method", "POST")
	a.router.Post(ProofsEndpoint, a.prove)
	log.Infow("register handler", "endpoint", VoteEncodingEndpoint, "method", "POST")
	a.router.Post(VoteEncodingEndpoint, a.encodeVote)
	log.Infow("register handler", "endpoint", DateEncodingEndpoint, "method", "POST")
	a.router.Post(DateEncodingEndpoint, a.encodeDate)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))

	// Register the API handlers
	a.registerHandlers()
}
