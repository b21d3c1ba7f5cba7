//go:build ignore

// Minimal walkthrough: check status, submit a capture, read back the log.
//
//	go run basic_client.go -base http://localhost:8000 -key sk-...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	systemzero "github.com/SaltProphet/SystemZero/sdk/go"
)

func main() {
	base := flag.String("base", "http://localhost:8000", "monitor base URL")
	key := flag.String("key", os.Getenv("SZ_API_KEY"), "API key")
	flag.Parse()

	client := systemzero.NewClient(*base, *key)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "status:", err)
		os.Exit(1)
	}
	fmt.Printf("service=%s integrity=%s entries=%d\n", status.Status, status.Integrity, status.LogEntries)

	capture := map[string]any{
		"id":        "login_screen",
		"role":      "window",
		"name":      "Login",
		"timestamp": float64(time.Now().Unix()),
		"children": []any{
			map[string]any{"role": "text", "name": "Username"},
			map[string]any{"role": "button", "name": "Submit"},
		},
	}
	result, err := client.SubmitCapture(ctx, capture)
	if err != nil {
		fmt.Fprintln(os.Stderr, "capture:", err)
		os.Exit(1)
	}
	fmt.Printf("capture=%s matched=%v score=%.2f drift=%v\n",
		result.CaptureID, result.Matched, result.Score, result.DriftDetected)

	entries, err := client.Logs(ctx, 10, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logs:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Printf("entry %v\n", e["entry_hash"])
	}
}
