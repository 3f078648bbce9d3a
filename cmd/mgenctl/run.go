package main

import (
	"Go2Mgen/internal/behavior"
	"Go2Mgen/internal/event"
	"Go2Mgen/internal/factory"
	"Go2Mgen/internal/metrics"
	"Go2Mgen/internal/session"
	"Go2Mgen/internal/snapshot"
	"Go2Mgen/internal/status"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "Go2Mgen/internal/archive"
	_ "Go2Mgen/internal/bus"
	_ "Go2Mgen/internal/recorder"
)

// Run flags
var (
	runCommands []string
	runRespond  bool
	replyPort   int
	quiet       bool
	snapshotDir string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open a session and stream its events",
	Long: `Open (launch or attach to) a generator instance, send any initial
commands, and stream parsed events to stdout and to the sinks enabled in the
configuration (NATS, ClickHouse, archive). Runs until interrupted or until the
generator output ends.`,
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runCommands, "command", "x", nil, "command to send once ready (repeatable)")
	runCmd.Flags().BoolVar(&runRespond, "respond", false, "react to received payloads (ack requests, voip, stream)")
	runCmd.Flags().IntVar(&replyPort, "reply-port", behavior.DefaultReplyPort, "destination port for reply flows")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print events to stdout")
	runCmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "", "save the flow table here when the session ends")
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := sessionOptions(cfg)
	opts.Metrics = m
	startCtx, cancel := context.WithTimeout(ctx, cfg.Generator.StartupTimeout)
	sess, err := session.Open(startCtx, opts)
	cancel()
	if err != nil {
		return err
	}
	defer sess.Shutdown()
	log.Printf("Session %s ready (owning: %v)", sess.Name(), sess.Owning())

	if cfg.Generator.SinkCommand != "" {
		if err := sess.SetSink(cfg.Generator.SinkCommand); err != nil {
			return err
		}
	}

	fan, err := factory.Create(cfg, sess.Name())
	if err != nil {
		return err
	}
	defer fan.Close()
	if !quiet {
		fan.Add(stdoutSink{})
	}

	if cfg.Status.Enabled {
		srv := status.NewServer(cfg.Status.ListenAddr, sess, m)
		srv.Start()
		defer func() {
			if err := srv.Shutdown(); err != nil {
				log.Printf("Status server shutdown: %v", err)
			}
		}()
		if cfg.Status.GRPCListenAddr != "" {
			gsrv := status.NewGRPCServer(cfg.Status.GRPCListenAddr, sess)
			if err := gsrv.Start(); err != nil {
				return fmt.Errorf("failed to start gRPC status server: %w", err)
			}
			defer gsrv.Shutdown()
		}
	}

	for _, c := range runCommands {
		if err := sess.SendCommand(c); err != nil {
			return err
		}
	}

	if !sess.Owning() {
		log.Printf("Session %s is attached; no output to stream, waiting for interrupt", sess.Name())
		<-ctx.Done()
		return nil
	}

	var dispatcher *behavior.Dispatcher
	if runRespond {
		dispatcher = behavior.New(sess, replyPort)
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		if ev := sess.StartEvent(); ev != nil {
			fan.Handle(ev)
		}
		for ev := range sess.Events() {
			fan.Handle(ev)
			if dispatcher != nil && ev.Type == event.RECV {
				if err := dispatcher.Handle(ev); err != nil {
					log.Printf("Session %s: %v", sess.Name(), err)
				}
			}
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			sess.Shutdown()
		case <-done:
		}
		return nil
	})
	err = g.Wait()
	log.Printf("Session %s finished", sess.Name())
	if snapshotDir != "" {
		dir, serr := snapshot.NewWriter().WriteSnapshot(sess, snapshotDir)
		if serr != nil {
			log.Printf("Session %s: snapshot failed: %v", sess.Name(), serr)
		} else {
			log.Printf("Session %s: flow table saved to %s", sess.Name(), dir)
		}
	}
	return err
}

type stdoutSink struct{}

func (stdoutSink) Handle(ev *event.Event) { fmt.Println(ev.String()) }
func (stdoutSink) Close()                 {}
