// Package e2e contains end-to-end tests that exercise the full platform
// stack: ingestion → dedup worker → report, with real Kafka, PostgreSQL,
// and Redis.
//
// Prerequisites:
//   - PostgreSQL running with the corpus schema applied
//   - Kafka (with Zookeeper) running
//   - Redis running
//   - An ingestion API key exported as E2E_API_KEY (dedupctl keys create e2e)
//
// Run with:
//
//	go test -v -timeout=180s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/PaliC/popcorn-data-utils/pkg/rpc"
	"github.com/PaliC/popcorn-data-utils/pkg/wire"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type e2eConfig struct {
	IngestionURL string
	ReportURL    string
	WorkerURL    string
	WorkerAddr   string
	APIKey       string
}

func loadE2EConfig() e2eConfig {
	_ = godotenv.Load("../../.env")
	return e2eConfig{
		IngestionURL: envOrDefault("E2E_INGESTION_URL", "http://localhost:8081"),
		ReportURL:    envOrDefault("E2E_REPORT_URL", "http://localhost:8080"),
		WorkerURL:    envOrDefault("E2E_WORKER_URL", "http://localhost:8082"),
		WorkerAddr:   envOrDefault("E2E_WORKER_ADDR", "localhost:7600"),
		APIKey:       os.Getenv("E2E_API_KEY"),
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestPlatformHealth verifies all services respond to health checks.
func TestPlatformHealth(t *testing.T) {
	cfg := loadE2EConfig()

	services := []struct {
		name string
		url  string
	}{
		{"ingestion /health", cfg.IngestionURL + "/health"},
		{"report /health", cfg.ReportURL + "/health"},
		{"report /health/ready", cfg.ReportURL + "/health/ready"},
		{"worker /health/live", cfg.WorkerURL + "/health/live"},
		{"worker /health/ready", cfg.WorkerURL + "/health/ready"},
	}

	client := &http.Client{Timeout: 5 * time.Second}

	for _, svc := range services {
		t.Run(svc.name, func(t *testing.T) {
			resp, err := client.Get(svc.url)
			if err != nil {
				t.Skipf("service unavailable: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("expected 200, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

// TestWorkerControlHealth verifies the worker answers on its RPC control
// port.
func TestWorkerControlHealth(t *testing.T) {
	cfg := loadE2EConfig()

	client, err := rpc.Dial(cfg.WorkerAddr)
	if err != nil {
		t.Skipf("worker control port unavailable: %v", err)
	}
	defer client.Close()

	var health wire.HealthCheckResponse
	if err := client.Call("Dedup.Health", struct{}{}, &health); err != nil {
		t.Fatalf("health call failed: %v", err)
	}
	if health.Status != "SERVING" {
		t.Errorf("worker status = %s, want SERVING", health.Status)
	}
}

// TestIntakeDedupReport exercises the full document lifecycle:
// ingest duplicates → trigger a run → wait for completion → read the report.
func TestIntakeDedupReport(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 10 * time.Second}

	// Check that the ingestion service is reachable.
	if _, err := client.Get(cfg.IngestionURL + "/health"); err != nil {
		t.Skipf("ingestion service unavailable: %v", err)
	}

	// 1. Ingest a unique document twice (exact duplicate) plus one distinct
	// document. The repeat carries a later commit time so it should win.
	nonce := fmt.Sprintf("e2etest%d", time.Now().UnixNano())
	older := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	newer := time.Now().UTC().Format(time.RFC3339)
	docs := []string{
		fmt.Sprintf(`{"text":"shared body for %s used to plant an exact duplicate","committed_at":"%s"}`, nonce, older),
		fmt.Sprintf(`{"text":"shared body for %s used to plant an exact duplicate","committed_at":"%s"}`, nonce, newer),
		fmt.Sprintf(`{"text":"a distinct document %s that nothing else resembles","committed_at":"%s"}`, nonce, newer),
	}

	for i, payload := range docs {
		req, err := http.NewRequest(http.MethodPost,
			cfg.IngestionURL+"/api/v1/documents", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("building request %d: %v", i, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if cfg.APIKey != "" {
			req.Header.Set("X-API-Key", cfg.APIKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("ingest request %d failed: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			t.Skipf("ingestion rejected the API key; set E2E_API_KEY (got: %s)", body)
		}
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202 for document %d, got %d: %s", i, resp.StatusCode, body)
		}

		var result map[string]any
		json.Unmarshal(body, &result)
		t.Logf("ingested document %d: id=%v", i, result["document_id"])
	}

	// 2. Trigger a run over the corpus through the control port.
	rpcClient, err := rpc.Dial(cfg.WorkerAddr)
	if err != nil {
		t.Skipf("worker control port unavailable: %v", err)
	}
	defer rpcClient.Close()

	var trigger wire.TriggerRunResponse
	if err := rpcClient.Call("Dedup.TriggerRun", wire.TriggerRunRequest{}, &trigger); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	t.Logf("triggered run %s", trigger.RunID)

	// 3. Poll until the run completes.
	var summary wire.RunSummary
	completed := false
	for attempt := 0; attempt < 60; attempt++ {
		time.Sleep(1 * time.Second)

		if err := rpcClient.Call("Dedup.RunStatus",
			wire.RunStatusRequest{RunID: trigger.RunID}, &summary); err != nil {
			t.Logf("attempt %d: status call failed: %v", attempt, err)
			continue
		}
		if summary.Status == "COMPLETED" {
			completed = true
			t.Logf("run completed after %d second(s): total=%d exact=%d near=%d kept=%d",
				attempt+1, summary.TotalDocs, summary.ExactDropped, summary.NearDropped, summary.Kept)
			break
		}
		if summary.Status == "FAILED" {
			t.Fatalf("run failed: %+v", summary)
		}
	}
	if !completed {
		t.Fatal("run did not complete within 60s")
	}

	// The corpus is shared with whatever else has been ingested, so only the
	// planted duplicate gives a hard guarantee.
	if summary.ExactDropped < 1 {
		t.Errorf("expected at least 1 exact duplicate dropped, got %d", summary.ExactDropped)
	}
	if summary.Kept < 2 {
		t.Errorf("expected at least 2 documents kept, got %d", summary.Kept)
	}

	// 4. Read the run back through the report service.
	reportResp, err := client.Get(cfg.ReportURL + "/api/v1/runs/" + trigger.RunID + "/report")
	if err != nil {
		t.Skipf("report service unavailable: %v", err)
	}
	defer reportResp.Body.Close()

	if reportResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(reportResp.Body)
		t.Fatalf("expected 200 from report, got %d: %s", reportResp.StatusCode, body)
	}
	var report map[string]any
	json.NewDecoder(reportResp.Body).Decode(&report)
	t.Logf("report: status=%v kept=%v", report["status"], report["kept"])

	if report["run_id"] != trigger.RunID {
		t.Errorf("report run_id = %v, want %s", report["run_id"], trigger.RunID)
	}
}

// TestReportCorpusStatus verifies the corpus status endpoint reports
// document counts by state.
func TestReportCorpusStatus(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(cfg.ReportURL + "/api/v1/corpus/status")
	if err != nil {
		t.Skipf("report service unavailable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var status map[string]any
	json.NewDecoder(resp.Body).Decode(&status)
	t.Logf("corpus status: %v", status)

	if _, ok := status["total"]; !ok {
		t.Errorf("missing expected field: total")
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
