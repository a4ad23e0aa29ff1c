// Command loadtest drives sustained document intake against the ingestion
// service and reports throughput, latency percentiles, and status codes.
// A fraction of the submitted documents repeat earlier bodies so a dedup run
// over the loaded corpus has real duplicates to find.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Concurrency int
	Duration    time.Duration
	DupRate     float64
}

// Stats collects per-request outcomes from all workers. A single
// mutex guards everything; the lock is uncontended enough at intake
// rates that finer granularity buys nothing.
type Stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	byStatus  map[int]int64
	total     int64
	accepted  int64
	failed    int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 100000),
		byStatus:  make(map[int]int64),
	}
}

func (s *Stats) RecordRequest(elapsed time.Duration, statusCode int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if err != nil {
		s.failed++
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.accepted++
	} else {
		s.failed++
	}
	s.latencies = append(s.latencies, elapsed)
	s.byStatus[statusCode]++
}

var vocabulary = []string{
	"corpus", "document", "signature", "shingle", "band", "bucket",
	"duplicate", "verdict", "snapshot", "pipeline", "threshold", "digest",
	"revision", "paragraph", "sentence", "fragment", "mirror", "reprint",
	"excerpt", "chapter", "abstract", "appendix", "citation", "edition",
}

// documentBody builds a ~200-word random document, unique per (worker, seq)
// thanks to the embedded nonce.
func documentBody(rng *rand.Rand, workerID, seq int) string {
	words := make([]string, 0, 201)
	words = append(words, fmt.Sprintf("loadtest-%d-%d-%d", workerID, seq, time.Now().UnixNano()))
	for i := 0; i < 200; i++ {
		words = append(words, vocabulary[rng.Intn(len(vocabulary))])
	}
	return strings.Join(words, " ")
}

func main() {
	baseURL := flag.String("url", "http://localhost:8081", "base URL of the ingestion service")
	apiKey := flag.String("api-key", os.Getenv("LOADTEST_API_KEY"), "ingestion API key")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	dupRate := flag.Float64("dup-rate", 0.1, "fraction of documents that repeat an earlier body")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		APIKey:      *apiKey,
		Concurrency: *concurrency,
		Duration:    *duration,
		DupRate:     *dupRate,
	}

	fmt.Println("=== Document Intake Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Dup rate:    %.0f%%\n", cfg.DupRate*100)
	if cfg.APIKey == "" {
		fmt.Println("Warning:     no API key set; expect 401s unless auth is disabled")
	}
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			intakeWorker(ctx, cfg, client, stats, workerID)
		}(w)
	}

	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-progress.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// intakeWorker posts generated documents until ctx expires, replaying
// the previous body at the configured duplicate rate.
func intakeWorker(ctx context.Context, cfg Config, client *http.Client, stats *Stats, workerID int) {
	rng := rand.New(rand.NewSource(int64(workerID) + time.Now().UnixNano()))
	var lastBody string

	for seq := 0; ctx.Err() == nil; seq++ {
		body := documentBody(rng, workerID, seq)
		if lastBody != "" && rng.Float64() < cfg.DupRate {
			body = lastBody
		}
		lastBody = body

		payload, _ := json.Marshal(map[string]any{
			"text":         body,
			"committed_at": time.Now().UTC().Format(time.RFC3339Nano),
		})

		start := time.Now()
		resp, err := client.Do(mustNewRequest(ctx, cfg, payload))
		elapsed := time.Since(start)

		if err != nil {
			stats.RecordRequest(elapsed, 0, err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		stats.RecordRequest(elapsed, resp.StatusCode, nil)
	}
}

func mustNewRequest(ctx context.Context, cfg Config, payload []byte) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		cfg.BaseURL+"/api/v1/documents", bytes.NewReader(payload))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("X-API-Key", cfg.APIKey)
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	stats.mu.Lock()
	total, accepted, failed := stats.total, stats.accepted, stats.failed
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	codes := make([]int, 0, len(stats.byStatus))
	for code := range stats.byStatus {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(codes))
	for code, n := range stats.byStatus {
		counts[code] = n
	}
	stats.mu.Unlock()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Accepted:        %d\n", accepted)
	fmt.Printf("Errors:          %d\n", failed)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		var sq float64
		for _, l := range latencies {
			d := float64(l) - float64(avg)
			sq += d * d
		}
		stddev := time.Duration(math.Sqrt(sq / float64(len(latencies))))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%.0f:    %s\n", p, percentile(latencies, p))
		}
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, counts[code])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
