package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"hackrx/backend/internal/config"
)

// Service selects which containers a suite starts.
type Service int

const (
	Postgres Service = 1 << iota
	Weaviate
	NSQ

	AllServices = Postgres | Weaviate | NSQ
)

// IntegrationSuite starts throwaway backing services for a test.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer

	// NSQDAddr is the nsqd TCP address consumers connect to.
	NSQDAddr string

	pgHost       string
	pgPort       int
	weaviateHost string

	services Service

	pgContainer       *postgres.PostgresContainer
	weaviateContainer testcontainers.Container
	nsqContainer      testcontainers.Container
}

// NewIntegrationSuite returns a suite for the given services, all of them
// when none are named.
func NewIntegrationSuite(t *testing.T, services ...Service) *IntegrationSuite {
	var set Service
	for _, s := range services {
		set |= s
	}
	if set == 0 {
		set = AllServices
	}
	return &IntegrationSuite{T: t, services: set}
}

func (s *IntegrationSuite) Setup() {
	ctx := context.Background()
	if s.services&Postgres != 0 {
		s.setupPostgres(ctx)
	}
	if s.services&Weaviate != 0 {
		s.setupWeaviate(ctx)
	}
	if s.services&NSQ != 0 {
		s.setupNSQ(ctx)
	}
}

func (s *IntegrationSuite) setupPostgres(ctx context.Context) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("hackrx_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.pgContainer = pgContainer

	s.pgHost, err = pgContainer.Host(ctx)
	require.NoError(s.T, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.pgPort, err = strconv.Atoi(pgPort.Port())
	require.NoError(s.T, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	m, err := migrate.New(MigrationPath(), connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) setupWeaviate(ctx context.Context) {
	req := testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:1.25.0",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
	}
	weaviateC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.weaviateContainer = weaviateC

	host, err := weaviateC.Host(ctx)
	require.NoError(s.T, err)
	port, err := weaviateC.MappedPort(ctx, "8080")
	require.NoError(s.T, err)

	s.weaviateHost = fmt.Sprintf("%s:%s", host, port.Port())
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{
		Host:   s.weaviateHost,
		Scheme: "http",
	})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) setupNSQ(ctx context.Context) {
	nsqReq := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	nsqC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: nsqReq,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.nsqContainer = nsqC

	nsqHost, err := nsqC.Host(ctx)
	require.NoError(s.T, err)
	nsqPort, err := nsqC.MappedPort(ctx, "4150")
	require.NoError(s.T, err)

	s.NSQDAddr = fmt.Sprintf("%s:%s", nsqHost, nsqPort.Port())
	s.NSQ, err = nsq.NewProducer(s.NSQDAddr, nsq.NewConfig())
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.pgContainer != nil {
		s.pgContainer.Terminate(ctx)
	}
	if s.weaviateContainer != nil {
		s.weaviateContainer.Terminate(ctx)
	}
	if s.nsqContainer != nil {
		s.nsqContainer.Terminate(ctx)
	}
}

// GetAppConfig returns a valid configuration pointed at the started
// containers. Services that were not started keep their in-process fallback.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	cfg := &config.Config{
		OpenRouterAPIKey:  "test-key",
		LLMBaseURL:        "http://127.0.0.1:0",
		LLMModel:          "test-model",
		LLMTimeoutSeconds: 5,

		EmbedderProvider:  config.EmbedderLocal,
		EmbedBatchSize:    16,
		LocalEmbeddingDim: 64,

		ChunkSize:     500,
		ChunkOverlap:  50,
		TopK:          4,
		PrefixChunks:  3,
		IndexMode:     config.IndexModeSync,
		VectorBackend: config.BackendMemory,
		DocHashLength: 16,
		CacheDir:      s.T.TempDir(),
		WorkDir:       s.T.TempDir(),

		IndexQueue:     config.QueueInProcess,
		RerankProvider: "none",

		ServerPort:             0,
		LogLevel:               "debug",
		MaxUploadSizeMB:        10,
		MaxDocumentSizeMB:      10,
		DownloadTimeoutSeconds: 10,

		BootstrapRetryAttempts:     3,
		BootstrapRetryDelaySeconds: 1,
	}

	if s.pgContainer != nil {
		cfg.DBHost = s.pgHost
		cfg.DBPort = s.pgPort
		cfg.DBUser = "test"
		cfg.DBPass = "test"
		cfg.DBName = "hackrx_test"
		cfg.MigrationPath = MigrationPath()
	}
	if s.weaviateContainer != nil {
		cfg.VectorBackend = config.BackendWeaviate
		cfg.WeaviateHost = s.weaviateHost
		cfg.WeaviateScheme = "http"
	}
	if s.nsqContainer != nil {
		cfg.IndexQueue = config.QueueNSQ
		cfg.NSQDHost = s.NSQDAddr
		cfg.NSQLookupd = ""
		cfg.NSQMaxMessageBytes = 1 << 20
	}
	return cfg
}

// MigrationPath is the file:// URL of the repo's migrations directory.
func MigrationPath() string {
	_, b, _, _ := runtime.Caller(0)
	return fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b))
}
