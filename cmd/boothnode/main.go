// boothnode runs one Booth or User over unix datagram sockets.
//
// The role follows from the id: 100..254 is a Booth, 0..99 a User. Several
// boothnode processes started on the same machine share a socket directory
// and form one simulated radio neighbourhood.
//
// User input: 's' scans, 'y'/'n' answer prompts, any other line is chat,
// /leave ends an experience and /quit disconnects.
//
// Booth input: lines are admin commands (b, i, c, a, w, r, s). A line
// starting with "> " is sent as chat to the connected users.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/user/boothmesh/config"
	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/monitor"
	"github.com/user/boothmesh/session"
	"github.com/user/boothmesh/timer"
	"github.com/user/boothmesh/wire"
)

// chatPrefix marks a Booth console line as chat rather than a command
const chatPrefix = "> "

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		id         int
		capacity   int
		logLevel   string
		listen     string
		linkDir    string
		distance   float64
		frameLogs  bool
	)

	flagSet := pflag.NewFlagSet("boothnode", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config (default: $"+config.EnvConfig+")")
	flagSet.IntVar(&id, "id", -1, "node id, 0..99 for a user and 100..254 for a booth")
	flagSet.IntVar(&capacity, "capacity", 0, "booth in-use capacity")
	flagSet.StringVar(&logLevel, "log-level", "", "TRACE, DEBUG, INFO, WARN or ERROR")
	flagSet.StringVar(&listen, "monitor", "", "serve the websocket monitor on this address")
	flagSet.StringVar(&linkDir, "socket-dir", "", "directory shared by node sockets")
	flagSet.Float64Var(&distance, "distance", 0, "simulated distance in meters")
	flagSet.BoolVar(&frameLogs, "frame-logs", false, "write JSONL frame logs")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flags override the file
	if flagSet.Changed("id") {
		cfg.Node.ID = id
	}
	if flagSet.Changed("capacity") {
		cfg.Booth.Capacity = capacity
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flagSet.Changed("monitor") {
		cfg.Monitor.Listen = listen
	}
	if flagSet.Changed("socket-dir") {
		cfg.Link.Dir = linkDir
	}
	if flagSet.Changed("distance") {
		cfg.Link.Distance = distance
	}
	if flagSet.Changed("frame-logs") {
		cfg.Link.FrameLogs = frameLogs
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	nodeID := cfg.NodeID()

	sim := wire.DefaultSimulationConfig()
	sim.PacketLossRate = cfg.Link.PacketLoss
	link := wire.NewSocketLink(nodeID, wire.SocketConfig{
		Dir:        cfg.Link.Dir,
		Distance:   cfg.Link.Distance,
		Simulation: sim,
		FrameLogs:  cfg.Link.FrameLogs,
	})

	period := cfg.Scan.Timeout
	if nodeID.IsBooth() {
		period = cfg.Booth.BeaconInterval
	}

	// The countdown is created before the node it fires into
	var node *session.Node
	countdown := timer.NewCountdown(period, func() { node.OnTimerExpired() })
	defer countdown.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var observer session.Observer
	if cfg.Monitor.Listen != "" {
		bus := monitor.NewBus()
		observer = monitor.NewObserver(bus)
		server := monitor.NewServer(bus, cfg.Monitor.Listen)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error(nodeID.Short(), "monitor: %v", err)
			}
		}()
	}

	node, err = session.New(session.Config{
		ID:       nodeID,
		Capacity: cfg.Booth.Capacity,
		Link:     link,
		Timer:    countdown,
		Observer: observer,
	})
	if err != nil {
		return err
	}

	if err := link.Start(node); err != nil {
		return fmt.Errorf("start link: %w", err)
	}
	defer link.Stop()

	node.Start()
	if nodeID.IsBooth() {
		fmt.Println("Admin commands: b <message>, i, c, a, w, r, s")
		fmt.Printf("Prefix a line with %q to chat with connected users.\n", chatPrefix)
	}

	go readInput(os.Stdin, node, nodeID.IsBooth())

	if err := node.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	logger.Info(nodeID.Short(), "shutting down")
	return nil
}

// readInput turns stdin lines into node input events until EOF.
// A closed stdin leaves the node running until it is signalled.
func readInput(r io.Reader, node *session.Node, booth bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		node.Input(inputFor(scanner.Text(), booth))
	}
}

func inputFor(line string, booth bool) session.InputEvent {
	if !booth {
		return session.Line(line)
	}
	if text, ok := strings.CutPrefix(line, chatPrefix); ok {
		return session.Line(text)
	}
	return session.Admin(strings.TrimSpace(line))
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `boothnode runs one booth or user node.

Usage:
  boothnode --id <0..254> [flags]

Examples:
  # A booth with three slots
  boothnode --id 101 --capacity 3

  # A user standing a little further away
  boothnode --id 7 --distance 4

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

