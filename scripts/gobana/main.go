package main

import (
	"Go2Mgen/internal/archive"
	"fmt"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <gob_archive>")
		os.Exit(1)
	}
	gobFile := os.Args[1]

	file, err := os.Open(gobFile)
	if err != nil {
		log.Fatalf("Unable to open file: %v", err)
	}
	defer file.Close()

	events, err := archive.ReadGob(file)
	if err != nil {
		log.Printf("Archive truncated after %d events: %v", len(events), err)
	}

	counts := make(map[string]int)
	for _, ev := range events {
		fmt.Println(ev.String())
		counts[ev.Type.String()]++
	}
	fmt.Printf("--- %d events: %v\n", len(events), counts)
}
