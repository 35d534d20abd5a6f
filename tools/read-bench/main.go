package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Hammers the read endpoints of a running archive instance and reports
// throughput. Paths are picked at random per request so the store sees a
// mix of day reads, user reads and random-line lookups.
func main() {
	baseURL := flag.String("url", "http://localhost:8025", "Base URL of the archive")
	channelID := flag.String("channel", "", "Channel id to query (required)")
	userID := flag.String("user", "", "Optional user id for user-scoped paths")
	date := flag.String("date", time.Now().UTC().Format("2006/1/2"), "Day path to read, e.g. 2023/6/1")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the benchmark")
	rps := flag.Int("rps", 500, "Requests per second limit")
	flag.Parse()

	if *channelID == "" {
		log.Fatal("-channel is required")
	}

	paths := []string{
		fmt.Sprintf("%s/channelid/%s/%s", *baseURL, *channelID, *date),
		fmt.Sprintf("%s/channelid/%s/random", *baseURL, *channelID),
		fmt.Sprintf("%s/channelid/%s/stats", *baseURL, *channelID),
	}
	if *userID != "" {
		paths = append(paths,
			fmt.Sprintf("%s/channelid/%s/userid/%s/random", *baseURL, *channelID, *userID),
			fmt.Sprintf("%s/channelid/%s/userid/%s/stats", *baseURL, *channelID, *userID),
		)
	}

	log.Printf("Starting read benchmark against %s", *baseURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Paths: %d", *concurrency, *duration, *rps, len(paths))

	var wg sync.WaitGroup
	var successCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100)

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, paths[rand.IntN(len(paths))], nil)
				if err != nil {
					continue
				}

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						errorCount.Add(1)
					}
					continue
				}

				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					successCount.Add(1)
				} else {
					errorCount.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	log.Println("Benchmark finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (200 OK): %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", float64(totalRequests)/duration.Seconds())
}
