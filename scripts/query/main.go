package main

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/recorder"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query the status API, 'direct' to query ClickHouse directly.")
	apiAddr := flag.String("api", "http://localhost:8080", "Status API base URL.")
	path := flag.String("path", "/api/v1/session", "Status API path (api mode).")
	configPath := flag.String("config", "", "YAML configuration file with the clickhouse section (direct mode).")
	instance := flag.String("instance", "", "Instance whose recorded events are summarised (direct mode).")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "api":
		queryViaAPI(*apiAddr + *path)
	case "direct":
		directQueryClickHouse(*configPath, *instance)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(url string) {
	log.Printf("Sending request to %s", url)

	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}
	fmt.Println(prettyJSON.String())
}

func directQueryClickHouse(configPath, instance string) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if instance == "" {
		instance = cfg.Generator.Instance
	}

	w, err := recorder.NewClickHouseWriter(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer w.Close()

	summary, err := w.Summary(context.Background(), instance)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	if len(summary) == 0 {
		log.Printf("No events recorded for instance %q.", instance)
		return
	}

	log.Printf("--- Recorded events for %s ---", instance)
	for _, tc := range summary {
		fmt.Printf("%-10s events=%d flows=%d bytes=%d\n", tc.Type, tc.Events, tc.Flows, tc.Bytes)
	}
}
