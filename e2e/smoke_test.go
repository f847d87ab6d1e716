//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".." // relative to ./e2e

// tripCSV is a tiny export: two loadable rows and one that cleaning drops.
const tripCSV = `ride_id,rideable_type,started_at,ended_at,start_station_name,start_station_id,end_station_name,end_station_id,start_lat,start_lng,end_lat,end_lng,member_casual
SMOKE0000000001,classic_bike,2023-07-12 08:15:00,2023-07-12 08:32:10,Clark St & Elm St,TA1307000039,Streeter Dr & Grand Ave,13022,41.902973,-87.631280,41.892278,-87.612043,member
SMOKE0000000002,electric_bike,2023-07-12 09:00:00,2023-07-12 09:14:30,Streeter Dr & Grand Ave,13022,,,41.892278,-87.612043,,,casual
SMOKE0000000003,classic_bike,2023-07-12 10:00:00,2023-07-12 10:00:00,Clark St & Elm St,TA1307000039,Streeter Dr & Grand Ave,13022,41.902973,-87.631280,41.892278,-87.612043,member
`

func TestSmoke_IngestAndServe(t *testing.T) {
	repoRoot := repoRootPath(t)
	ctx := context.Background()

	dbHost, dbPort := startPostgres(t, ctx)
	natsURL := startNATS(t, ctx)
	valkeyAddr := startValkey(t, ctx)

	baseEnv := append(os.Environ(),
		"LOG_LEVEL=info",
		"BIKESHARE_DATABASE_HOST="+dbHost,
		"BIKESHARE_DATABASE_PORT="+dbPort,
		"BIKESHARE_DATABASE_USER=bikeshare",
		"BIKESHARE_DATABASE_PASSWORD=bikeshare",
		"BIKESHARE_DATABASE_DBNAME=bikeshare",
		"BIKESHARE_NATS_URL="+natsURL,
		"BIKESHARE_VALKEY_ADDR="+valkeyAddr,
		"BIKESHARE_TELEMETRY_ENABLED=false",
	)

	// Schema
	migrate := buildBinary(t, repoRoot, "./cmd/migrate", "bikeshare-migrate")
	runBinary(t, repoRoot, baseEnv, migrate, "up")

	// Load the fixture export
	dataDir := t.TempDir()
	csvPath := filepath.Join(dataDir, "202307-smoke.csv")
	if err := os.WriteFile(csvPath, []byte(tripCSV), 0o644); err != nil {
		t.Fatalf("write fixture csv: %v", err)
	}
	manifest := fmt.Sprintf(`{"source":"smoke","months":[{"name":"202307","path":%q}]}`, csvPath)
	manifestPath := filepath.Join(dataDir, "manifest.json")
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	ingestor := buildBinary(t, repoRoot, "./cmd/ingestor", "bikeshare-ingestor")
	runBinary(t, repoRoot, baseEnv, ingestor, manifestPath)

	// API
	apiBin := buildBinary(t, repoRoot, "./cmd/api", "bikeshare-api")
	port := freePort(t)

	cmd := exec.Command(apiBin)
	cmd.Dir = repoRoot
	cmd.Env = append(baseEnv, "BIKESHARE_SERVER_PORT="+strconv.Itoa(port))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start api: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 3 * time.Second}
	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	waitForOK(t, client, base+"/v1/health", 15*time.Second)

	// Every dependency is up, so readiness must pass
	assertStatus(t, client, base+"/v1/ready", http.StatusOK)

	// Cleaning dropped the zero-duration row
	var status struct {
		Rides      int64 `json:"rides"`
		Stations   int64 `json:"stations"`
		LastIngest *struct {
			Status      string `json:"status"`
			RowsRead    int64  `json:"rows_read"`
			RowsLoaded  int64  `json:"rows_loaded"`
			RowsSkipped int64  `json:"rows_skipped"`
		} `json:"last_ingest"`
	}
	getJSON(t, client, base+"/v1/datasets/status", &status)

	if status.Rides != 2 {
		t.Errorf("rides = %d, want 2", status.Rides)
	}
	if status.LastIngest == nil {
		t.Fatal("expected a recorded ingest run")
	}
	if status.LastIngest.Status != "completed" {
		t.Errorf("ingest status = %q", status.LastIngest.Status)
	}
	if status.LastIngest.RowsRead != 3 || status.LastIngest.RowsLoaded != 2 || status.LastIngest.RowsSkipped != 1 {
		t.Errorf("ingest counters = %+v", status.LastIngest)
	}

	// Loaded ride is retrievable by its source id
	var ride struct {
		RideID       string `json:"ride_id"`
		MemberCasual string `json:"member_casual"`
	}
	getJSON(t, client, base+"/v1/rides/SMOKE0000000001", &ride)
	if ride.RideID != "SMOKE0000000001" || ride.MemberCasual != "member" {
		t.Errorf("ride = %+v", ride)
	}

	// No refresh has run, so the catalog is empty but well-formed
	var page struct {
		Data       []json.RawMessage `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	getJSON(t, client, base+"/v1/stations", &page)
	if page.Pagination.Total != 0 || len(page.Data) != 0 {
		t.Errorf("stations page = %+v", page)
	}

	// Parameter validation
	assertStatus(t, client, base+"/v1/stations/nearby", http.StatusBadRequest)
	assertStatus(t, client, base+"/v1/rides/NOPE", http.StatusNotFound)

	stopServer(t, cmd)
}

// ---------------------------------------------------------------------------
// Containers
// ---------------------------------------------------------------------------

func startPostgres(t *testing.T, ctx context.Context) (host, port string) {
	t.Helper()

	req := tc.ContainerRequest{
		Image: "postgis/postgis:16-3.4",
		Env: map[string]string{
			"POSTGRES_USER":     "bikeshare",
			"POSTGRES_PASSWORD": "bikeshare",
			"POSTGRES_DB":       "bikeshare",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	c := startContainer(t, ctx, req)

	h, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	p, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	return h, p.Port()
}

func startNATS(t *testing.T, ctx context.Context) string {
	t.Helper()

	req := tc.ContainerRequest{
		Image:        "nats:2.10-alpine",
		Cmd:          []string{"-js"},
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	}
	c := startContainer(t, ctx, req)

	h, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("nats host: %v", err)
	}
	p, err := c.MappedPort(ctx, "4222/tcp")
	if err != nil {
		t.Fatalf("nats port: %v", err)
	}
	return fmt.Sprintf("nats://%s:%s", h, p.Port())
}

func startValkey(t *testing.T, ctx context.Context) string {
	t.Helper()

	req := tc.ContainerRequest{
		Image:        "valkey/valkey:8-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	c := startContainer(t, ctx, req)

	h, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("valkey host: %v", err)
	}
	p, err := c.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("valkey port: %v", err)
	}
	return fmt.Sprintf("%s:%s", h, p.Port())
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest) tc.Container {
	t.Helper()

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start container %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})
	return c
}

// ---------------------------------------------------------------------------
// Process helpers
// ---------------------------------------------------------------------------

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}
	return repo
}

func buildBinary(t *testing.T, repoRoot, pkg, name string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), name)

	build := exec.Command("go", "build", "-o", out, pkg)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build %s failed: %v\n%s", pkg, err, string(b))
	}
	return out
}

func runBinary(t *testing.T, repoRoot string, env []string, bin string, args ...string) {
	t.Helper()

	cmd := exec.Command(bin, args...)
	cmd.Dir = repoRoot
	cmd.Env = env

	b, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%s %v failed: %v\n%s", filepath.Base(bin), args, err, string(b))
	}
}

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().(*net.TCPAddr).Port
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

func assertStatus(t *testing.T, client *http.Client, url string, want int) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Errorf("GET %s status = %d, want %d", url, resp.StatusCode, want)
	}
}

func getJSON(t *testing.T, client *http.Client, url string, out any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatal("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
