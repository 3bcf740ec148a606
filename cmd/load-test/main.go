package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

const sentBody = "MESSAGE WAS SENT"

type LoadTestResult struct {
	TotalRequests  int
	SuccessCount   int
	FailureCount   int
	TotalDuration  time.Duration
	RequestsPerSec float64
	Avg            time.Duration
	Min            time.Duration
	Max            time.Duration
	P95            time.Duration
	Errors         map[string]int
}

type sample struct {
	latency time.Duration
	err     string
}

// sendOne posts body to url and reports the latency and, on failure, why.
func sendOne(client *http.Client, url, body string) sample {
	start := time.Now()
	resp, err := client.Post(url, "text/plain", strings.NewReader(body))
	if err != nil {
		return sample{latency: time.Since(start), err: err.Error()}
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	s := sample{latency: time.Since(start)}
	if resp.StatusCode != http.StatusOK || string(b) != sentBody {
		s.err = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(b))
	}
	return s
}

func runLoadTest(client *http.Client, url string, numRequests, concurrency int) *LoadTestResult {
	var (
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, concurrency)
		samples   = make([]sample, numRequests)
	)

	fmt.Printf("\n🚀 Starting load test: %d requests with concurrency %d\n", numRequests, concurrency)
	fmt.Printf("Target: %s\n", url)

	start := time.Now()
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(n int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			samples[n] = sendOne(client, url, fmt.Sprintf("load test message #%d", n))
			if n%100 == 0 {
				fmt.Print(".")
			}
		}(i)
	}
	wg.Wait()
	fmt.Println()

	return summarize(samples, time.Since(start))
}

func summarize(samples []sample, total time.Duration) *LoadTestResult {
	r := &LoadTestResult{
		TotalRequests: len(samples),
		TotalDuration: total,
		Errors:        make(map[string]int),
	}
	if len(samples) == 0 {
		return r
	}

	latencies := make([]time.Duration, 0, len(samples))
	var sum time.Duration
	for _, s := range samples {
		latencies = append(latencies, s.latency)
		sum += s.latency
		if s.err != "" {
			r.FailureCount++
			r.Errors[s.err]++
		} else {
			r.SuccessCount++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	r.Avg = sum / time.Duration(len(samples))
	r.Min = latencies[0]
	r.Max = latencies[len(latencies)-1]
	r.P95 = latencies[(len(latencies)*95+99)/100-1]
	if total > 0 {
		r.RequestsPerSec = float64(len(samples)) / total.Seconds()
	}
	return r
}

func printResults(result *LoadTestResult) {
	pct := func(n int) float64 { return float64(n) / float64(result.TotalRequests) * 100 }

	fmt.Printf("\n📊 Load Test Results\n")
	fmt.Printf("Total Requests:      %d\n", result.TotalRequests)
	fmt.Printf("✅ Success:           %d (%.2f%%)\n", result.SuccessCount, pct(result.SuccessCount))
	fmt.Printf("❌ Failed:            %d (%.2f%%)\n", result.FailureCount, pct(result.FailureCount))
	fmt.Printf("⏱️  Total Duration:    %v\n", result.TotalDuration)
	fmt.Printf("⚡ Requests/sec:      %.2f\n", result.RequestsPerSec)
	fmt.Printf("📈 Avg Response Time: %v\n", result.Avg)
	fmt.Printf("⬇️  Min Response Time: %v\n", result.Min)
	fmt.Printf("⬆️  Max Response Time: %v\n", result.Max)
	fmt.Printf("📐 p95 Response Time: %v\n", result.P95)

	if len(result.Errors) > 0 {
		fmt.Println("❌ Errors:")
		for errMsg, count := range result.Errors {
			fmt.Printf("   • %s: %d times\n", errMsg, count)
		}
	}
	fmt.Println()
}

func main() {
	base := flag.String("url", "http://localhost:8080", "mq-writer base URL")
	requests := flag.Int("n", 1000, "number of POST /sendQueue requests")
	concurrency := flag.Int("c", 50, "concurrent requests")
	bulk := flag.Bool("bulk", false, "also trigger GET /sendFromFile once")
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}

	fmt.Println("🔍 Checking if server is running...")
	resp, err := client.Get(*base + "/health")
	if err != nil {
		fmt.Printf("❌ Error: Cannot connect to server at %s\n", *base)
		os.Exit(1)
	}
	resp.Body.Close()
	fmt.Println("✅ Server is running")

	result := runLoadTest(client, *base+"/sendQueue", *requests, *concurrency)
	printResults(result)

	if *bulk {
		resp, err := client.Get(*base + "/sendFromFile")
		if err != nil {
			fmt.Printf("❌ sendFromFile: %v\n", err)
			os.Exit(1)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		fmt.Printf("📦 sendFromFile: HTTP %d %s\n", resp.StatusCode, string(b))
	}

	if result.FailureCount > 0 {
		os.Exit(1)
	}
}
