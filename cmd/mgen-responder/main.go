package main

import (
	"Go2Mgen/internal/behavior"
	"Go2Mgen/internal/config"
	"Go2Mgen/internal/conversation"
	"Go2Mgen/internal/factory"
	"Go2Mgen/internal/metrics"
	"Go2Mgen/internal/session"
	"Go2Mgen/internal/status"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "Go2Mgen/internal/archive"
	_ "Go2Mgen/internal/bus"
	_ "Go2Mgen/internal/recorder"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	nodeID := flag.String("node", "", "this node's id")
	responders := flag.String("responders", "", "respondent list: node[/[addr/]weight][,...]")
	seed := flag.Int64("seed", 0, "selection seed shared by every node")
	thread := flag.Uint("thread", 0, "conversation thread id")
	rate := flag.Float64("rate", 0, "messages per second")
	size := flag.Int("size", 0, "message size in bytes")
	group := flag.String("group", "", "multicast group")
	port := flag.Int("port", 0, "message port")
	unicast := flag.Bool("unicast", false, "send each message to the next sender instead of a group")
	instanceName := flag.String("instance", "", "generator instance name")
	flag.Parse()

	log.Println("Starting mgen-responder...")

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		log.Println("Configuration loaded successfully.")
	}

	r := &cfg.Responder
	if *nodeID != "" {
		r.NodeID = *nodeID
	}
	if *responders != "" {
		defs, err := config.ParseRespondents(*responders)
		if err != nil {
			log.Fatalf("Invalid -responders: %v", err)
		}
		r.Respondents = defs
	}
	if *seed != 0 {
		r.Seed = *seed
	}
	if *thread != 0 {
		r.ThreadID = uint32(*thread)
	}
	if *rate > 0 {
		r.MsgRate = *rate
	}
	if *size > 0 {
		r.MsgSize = *size
	}
	if *port != 0 {
		r.Port = *port
	}
	if *unicast {
		r.Unicast = true
	}
	if *group != "" {
		r.Group = *group
	}
	if r.Unicast {
		r.Group = ""
	}
	if *instanceName != "" {
		cfg.Generator.Instance = *instanceName
	}
	if r.NodeID == "" {
		log.Fatalf("A node id is required (-node or responder.node_id)")
	}
	if cfg.Generator.Instance == "" {
		cfg.Generator.Instance = "responder-" + r.NodeID
	}

	m, err := metrics.New()
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, cfg.Generator.StartupTimeout)
	sess, err := session.Open(startCtx, session.Options{
		Name:      cfg.Generator.Instance,
		GPSKey:    cfg.Generator.GPSKey,
		Binary:    cfg.Generator.Binary,
		SocketDir: cfg.Generator.SocketDir,
		PipeDir:   cfg.Generator.PipeDir,
		Metrics:   m,
	})
	cancel()
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	if !sess.Owning() {
		sess.Shutdown()
		log.Fatalf("Instance %s is already running; a responder needs its own generator", cfg.Generator.Instance)
	}

	fan, err := factory.Create(cfg, sess.Name())
	if err != nil {
		sess.Shutdown()
		log.Fatalf("Failed to create sinks: %v", err)
	}

	var srv *status.Server
	var gsrv *status.GRPCServer
	if cfg.Status.Enabled {
		srv = status.NewServer(cfg.Status.ListenAddr, sess, m)
		srv.Start()
		if cfg.Status.GRPCListenAddr != "" {
			gsrv = status.NewGRPCServer(cfg.Status.GRPCListenAddr, sess)
			if err := gsrv.Start(); err != nil {
				log.Printf("Failed to start gRPC status server: %v", err)
				gsrv = nil
			}
		}
	}

	resp := r.BuildResponder()
	log.Printf("Node %s: thread %d, %d respondents, seed %d", r.NodeID, r.ThreadID, resp.Len(), resp.Seed())

	err = conversation.Run(ctx, sess, conversation.Config{
		NodeID:     r.NodeID,
		ThreadID:   r.ThreadID,
		MsgSize:    r.MsgSize,
		MsgRate:    r.MsgRate,
		Group:      r.Group,
		Port:       r.Port,
		Responder:  resp,
		Dispatcher: behavior.New(sess, behavior.DefaultReplyPort),
		Observe:    fan.Handle,
		Metrics:    m,
	})
	if err != nil {
		log.Printf("Conversation ended with error: %v", err)
	}

	log.Println("Shutting down...")
	if gsrv != nil {
		gsrv.Shutdown()
	}
	if srv != nil {
		if err := srv.Shutdown(); err != nil {
			log.Printf("Status server shutdown: %v", err)
		}
	}
	sess.Shutdown()
	fan.Close()
	log.Println("Shutdown complete.")
}
