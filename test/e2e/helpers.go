//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/api/handlers"
	"github.com/cloo-solutions/coverstats/internal/api/middleware"
	"github.com/cloo-solutions/coverstats/internal/extraction"
	"github.com/cloo-solutions/coverstats/internal/repository"
	"github.com/cloo-solutions/coverstats/internal/search"
	"github.com/cloo-solutions/coverstats/internal/search/searchtest"
	"github.com/cloo-solutions/coverstats/internal/server"
	"github.com/cloo-solutions/coverstats/internal/target"
	"github.com/cloo-solutions/coverstats/internal/testutil"
)

const apiToken = "e2e-secret"

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T         *testing.T
	Ctx       context.Context
	PostgresC *testutil.PostgresContainer
	Pool      *pgxpool.Pool
	Search    *searchtest.Server

	Client     *search.Client
	Service    *extraction.Service
	Entries    *repository.EntryRepository
	Watermarks *repository.WatermarkRepository
	TxRunner   *repository.TxRunner

	EntryHandler *handlers.EntryHandler
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres, a fake search engine and the read API.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")
	srv := searchtest.NewServer(t)

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		Pool:       pool,
		Search:     srv,
		Client:     search.NewClient(srv.BaseURL(), 10*time.Second, nil),
		Entries:    repository.NewEntryRepository(pool),
		Watermarks: repository.NewWatermarkRepository(pool),
		TxRunner:   repository.NewTxRunner(pool),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.Service = extraction.NewService(
		search.NewCursor(env.Client, zap.NewNop()),
		search.NewMemorySlot(),
		env.Entries,
		env.Watermarks,
		env.TxRunner,
		zap.NewNop(),
		nil,
	)

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	env.startServer(port)
	return env
}

// StoreTarget returns a fresh database target.
func (e *E2ETestEnv) StoreTarget() *target.StoreTarget {
	return target.NewStoreTarget(e.Entries, e.TxRunner)
}

func (e *E2ETestEnv) startServer(port int) {
	e.EntryHandler = handlers.NewEntryHandler(e.Entries, nil)
	router := server.NewRouter(server.RouterConfig{
		AuthValidator:    middleware.StaticTokens{apiToken},
		EntryHandler:     e.EntryHandler,
		WatermarkHandler: handlers.NewWatermarkHandler(e.Watermarks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()

	e.ServerURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	e.ServerCloser = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}

	// wait for the listener
	for i := 0; i < 50; i++ {
		resp, err := http.Get(e.ServerURL + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("server did not start on port %d", port)
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.EntryHandler != nil {
		e.EntryHandler.Wait()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		_ = e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		_ = os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinary builds coverstatsd into a temporary directory.
func (e *E2ETestEnv) BuildBinary() {
	tmpDir, err := os.MkdirTemp("", "coverstats-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "coverstatsd"), "./cmd/coverstatsd")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build coverstatsd: %v\n%s", err, out)
	}
}

// RunCoverstatsd runs the binary against the test environment.
func (e *E2ETestEnv) RunCoverstatsd(workDir string, extraEnv []string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "coverstatsd"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"COVERSTATS_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"COVERSTATS_SEARCH_URL="+e.Search.BaseURL(),
		"COVERSTATS_LOG_LEVEL=warn",
	)
	cmd.Env = append(cmd.Env, extraEnv...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
}

// Get performs an authenticated GET request.
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.get(path, apiToken)
}

func (e *E2ETestEnv) get(path, token string) (*APIResponse, error) {
	req, err := http.NewRequest(http.MethodGet, e.ServerURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return apiResp, nil
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
