package main

import (
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/flow"
	"Go2Mgen/internal/session"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// Flow flags
var (
	flowID       int
	flowProto    string
	flowDst      string
	flowPattern  string
	flowCount    int
	flowPayload  string
	flowDuration time.Duration
)

var flowCmd = &cobra.Command{
	Use:     "flow",
	Short:   "Start a single flow and print the resulting events",
	Example: `  mgenctl flow --dst 127.0.0.1/5000 --pattern "periodic [10 512]" --count 20`,
	RunE:    runFlow,
}

func init() {
	flowCmd.Flags().IntVar(&flowID, "id", 1, "flow id")
	flowCmd.Flags().StringVar(&flowProto, "proto", "udp", "protocol: udp, tcp or sink")
	flowCmd.Flags().StringVar(&flowDst, "dst", "", "destination ADDR/PORT")
	flowCmd.Flags().StringVar(&flowPattern, "pattern", "periodic [1 1024]", "traffic pattern")
	flowCmd.Flags().IntVar(&flowCount, "count", 0, "stop after this many messages (0 for unlimited)")
	flowCmd.Flags().StringVar(&flowPayload, "payload", "", "text payload carried by every message")
	flowCmd.Flags().DurationVar(&flowDuration, "duration", 10*time.Second, "how long to run before stopping the flow")
	flowCmd.MarkFlagRequired("dst")
}

// parseDestination splits "ADDR/PORT".
func parseDestination(s string) (string, int, error) {
	i := strings.LastIndex(s, "/")
	if i <= 0 {
		return "", 0, fmt.Errorf("destination %q is not ADDR/PORT", s)
	}
	port, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("destination %q: invalid port: %w", s, err)
	}
	return s[:i], port, nil
}

func buildFlow() (*flow.Flow, error) {
	proto, err := flow.ParseProtocol(flowProto)
	if err != nil {
		return nil, err
	}
	addr, port, err := parseDestination(flowDst)
	if err != nil {
		return nil, err
	}
	f := flow.New(flowID)
	if err := f.SetProtocol(proto); err != nil {
		return nil, err
	}
	if err := f.SetDestination(addr, port); err != nil {
		return nil, err
	}
	if err := f.SetPattern(flowPattern); err != nil {
		return nil, err
	}
	if flowCount > 0 {
		if err := f.SetCount(flowCount); err != nil {
			return nil, err
		}
	}
	if flowPayload != "" {
		if err := f.SetTextPayload(flowPayload); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func runFlow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := buildFlow()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, cfg.Generator.StartupTimeout)
	sess, err := session.Open(startCtx, sessionOptions(cfg))
	cancel()
	if err != nil {
		return err
	}
	defer sess.Shutdown()

	if err := sess.AddFlow(f); err != nil {
		return err
	}
	if err := f.Start(0); err != nil {
		return err
	}
	log.Printf("Flow %d started on %s, running for %s", f.ID(), sess.Name(), flowDuration)

	runCtx, cancelRun := context.WithTimeout(ctx, flowDuration)
	defer cancelRun()
	finish := func() {
		if err := f.Stop(); err != nil {
			log.Printf("Flow %d: stop: %v", f.ID(), err)
		}
		sess.Shutdown()
	}

	if !sess.Owning() {
		<-runCtx.Done()
		finish()
		return nil
	}

	go func() {
		<-runCtx.Done()
		finish()
	}()
	for ev := range sess.Events() {
		if ev.Type == event.SEND || ev.Type == event.RECV || ev.FlowID == f.ID() {
			fmt.Println(ev.String())
		}
	}
	return nil
}
