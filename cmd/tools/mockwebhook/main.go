package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Sends a self-signed Stripe-style webhook event at a local server, for
// exercising /webhooks/stripe without the Stripe CLI.
func main() {
	url := flag.String("url", "http://localhost:8080/webhooks/stripe", "Webhook URL")
	secret := flag.String("secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "Webhook signing secret")
	eventID := flag.String("event-id", "evt_"+randomHex(12), "Event ID")
	eventType := flag.String("type", "payment_intent.succeeded", "Event type")
	objectJSON := flag.String("object", `{"id":"pi_test","status":"succeeded"}`, "data.object JSON")
	dryRun := flag.Bool("dry-run", false, "Only print signature header, don't send")

	flag.Parse()

	if *secret == "" {
		fmt.Fprintf(os.Stderr, "Error: secret not provided and STRIPE_WEBHOOK_SECRET not set\n")
		os.Exit(1)
	}

	var obj json.RawMessage
	if err := json.Unmarshal([]byte(*objectJSON), &obj); err != nil {
		fmt.Fprintf(os.Stderr, "Error: -object is not valid JSON: %v\n", err)
		os.Exit(1)
	}

	body, err := json.Marshal(map[string]any{
		"id":      *eventID,
		"object":  "event",
		"type":    *eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": obj},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling payload: %v\n", err)
		os.Exit(1)
	}

	t := time.Now().Unix()
	sigHeader := fmt.Sprintf("t=%d,v1=%s", t, computeSig([]byte(*secret), t, body))

	fmt.Printf("Stripe-Signature: %s\n", sigHeader)
	fmt.Printf("Body: %s\n", string(body))

	if *dryRun {
		fmt.Println("\n[DRY RUN] Not sending request")
		return
	}

	fmt.Printf("\nSending to %s...\n", *url)
	req, err := http.NewRequest("POST", *url, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating request: %v\n", err)
		os.Exit(1)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", sigHeader)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %d\n", resp.StatusCode)
	fmt.Printf("Response: %s\n", string(respBody))

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// Stripe's v1 scheme: HMAC-SHA256 over "<timestamp>.<payload>".
func computeSig(secret []byte, t int64, body []byte) string {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(strconv.FormatInt(t, 10)))
	m.Write([]byte("."))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)[:n]
}
