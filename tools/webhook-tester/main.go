package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func main() {
	targetURL := flag.String("url", "http://localhost:8080/webhook/close", "Target webhook URL")
	secret := flag.String("secret", "", "Webhook signing secret (empty sends unsigned)")
	concurrency := flag.Int("c", 4, "Number of concurrent workers")
	duration := flag.Duration("d", 10*time.Second, "Duration of the test")
	rps := flag.Int("rps", 20, "Requests per second limit")
	dupRatio := flag.Int("dup-every", 3, "Re-deliver every Nth event to exercise dedup")
	flag.Parse()

	log.Printf("Sending signed open webhooks to %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d", *concurrency, *duration, *rps)

	var wg sync.WaitGroup
	var successCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 10)

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			var lastEventID string
			sent := 0
			for {
				select {
				case <-ctx.Done():
					return
				default:
					if err := limiter.Wait(ctx); err != nil {
						return // context expired while waiting for a token
					}

					// Re-use a previous event id periodically to simulate
					// the CRM re-delivering the same open.
					emailID := "acti_" + uuid.NewString()
					if *dupRatio > 0 && sent%*dupRatio == 0 && lastEventID != "" {
						emailID = lastEventID
					}
					lastEventID = emailID
					sent++

					body := openPayload(emailID, workerID)
					req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewReader(body))
					if err != nil {
						continue // Should not happen
					}
					req.Header.Set("Content-Type", "application/json")
					if *secret != "" {
						timestamp := strconv.FormatInt(time.Now().Unix(), 10)
						req.Header.Set("close-sig-timestamp", timestamp)
						req.Header.Set("close-sig-hash", sign(*secret, timestamp, body))
					}

					resp, err := client.Do(req)
					if err != nil {
						errorCount.Add(1)
						continue
					}

					if resp.StatusCode == http.StatusOK {
						successCount.Add(1)
					} else {
						errorCount.Add(1)
					}
					resp.Body.Close()
				}
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Webhook test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Accepted (200 OK): %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}

func openPayload(emailID string, workerID int) []byte {
	openedAt := time.Now().UTC().Format(time.RFC3339)
	payload := fmt.Sprintf(`{
		"event": {
			"object_type": "activity.email",
			"action": "updated",
			"changed_fields": ["opens"],
			"data": {
				"id": "%s",
				"lead_id": "lead_tester_%d",
				"lead_name": "Webhook Tester %d",
				"subject": "Synthetic open from webhook-tester",
				"to": [{"email": "worker%d@example.test"}],
				"opens": [{"opened_at": "%s"}]
			}
		}
	}`, emailID, workerID, workerID, workerID, openedAt)
	return []byte(payload)
}

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
