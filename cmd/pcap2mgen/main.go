package main

import (
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/factory"
	"Go2Mgen/pkg/pcap"
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	_ "Go2Mgen/internal/archive"
	_ "Go2Mgen/internal/bus"
	_ "Go2Mgen/internal/recorder"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file; enables the configured event sinks")
	outPath := flag.String("o", "-", "output file for log lines ('-' for stdout, '' for none)")
	instance := flag.String("instance", "pcap", "instance name events are attributed to")
	foreign := flag.Bool("foreign", false, "also emit UDP datagrams that carry no generator header")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path_to_pcap_file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Println("Configuration loaded successfully.")
	}

	fan, err := factory.Create(cfg, *instance)
	if err != nil {
		log.Fatalf("Failed to create sinks: %v", err)
	}

	var out *bufio.Writer
	switch *outPath {
	case "":
	case "-":
		out = bufio.NewWriter(os.Stdout)
	default:
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = bufio.NewWriter(f)
	}

	reader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()
	log.Printf("Reading packets from '%s'...", pcapFilePath)

	events := make(chan *event.Event, 1024)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			fan.Handle(ev)
			if out != nil {
				out.WriteString(ev.String() + "\n")
			}
		}
	}()

	st := reader.ReadEvents(events, *foreign)
	close(events)
	<-done

	if out != nil {
		if err := out.Flush(); err != nil {
			log.Printf("Failed to flush output: %v", err)
		}
	}
	fan.Close()
	log.Printf("Finished: %d packets, %d events, %d non-UDP skipped, %d without generator header.",
		st.Packets, st.Events, st.Skipped, st.Foreign)
}
