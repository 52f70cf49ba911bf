// boothsim plays a scripted booth scenario on the in-process medium.
//
// Two booths and a handful of users share one simulated radio channel. The
// users discover the nearest booth, connect, compete for its experience slots,
// chat, and leave again, while the booth operator issues console commands.
// Timers are driven by the script so every run prints the same story.
package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/user/boothmesh/logger"
	"github.com/user/boothmesh/monitor"
	"github.com/user/boothmesh/session"
	"github.com/user/boothmesh/wire"
	"github.com/user/boothmesh/wire/msg"
)

const (
	nearBooth msg.NodeID = 101
	farBooth  msg.NodeID = 102
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		users    int
		capacity int
		logLevel string
		listen   string
		pause    time.Duration
		hold     bool
		loss     float64
		seed     int64
	)

	flagSet := pflag.NewFlagSet("boothsim", pflag.ContinueOnError)
	flagSet.IntVar(&users, "users", 4, "number of users (1..99)")
	flagSet.IntVar(&capacity, "capacity", 2, "in-use capacity of each booth")
	flagSet.StringVar(&logLevel, "log-level", "WARN", "TRACE, DEBUG, INFO, WARN or ERROR")
	flagSet.StringVar(&listen, "monitor", "", "serve the websocket monitor on this address")
	flagSet.DurationVar(&pause, "pause", 0, "delay between phases, useful with --monitor")
	flagSet.BoolVar(&hold, "hold", false, "keep the monitor running after the script until interrupted")
	flagSet.Float64Var(&loss, "loss", 0, "packet loss rate")
	flagSet.Int64Var(&seed, "seed", 1, "random seed for the radio simulation")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if users < 1 || users >= int(msg.BoothIDFloor) {
		return fmt.Errorf("--users must be in 1..%d", msg.BoothIDFloor-1)
	}
	if capacity < 1 {
		return fmt.Errorf("--capacity must be positive")
	}
	if loss < 0 || loss >= 1 {
		return fmt.Errorf("--loss must be in [0, 1)")
	}
	logger.SetLevel(logger.ParseLevel(logLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var observer session.Observer
	if listen != "" {
		bus := monitor.NewBus()
		observer = monitor.NewObserver(bus)
		server := monitor.NewServer(bus, listen)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("sim", "monitor: %v", err)
			}
		}()
	}

	sim := wire.PerfectSimulationConfig()
	sim.PacketLossRate = loss
	sim.Seed = seed

	w := newWorld(wire.NewMedium(wire.MediumConfig{Simulation: sim}), observer)
	if err := w.add(nearBooth, wire.Position{X: 0, Y: 0}, capacity); err != nil {
		return err
	}
	if err := w.add(farBooth, wire.Position{X: 30, Y: 0}, capacity); err != nil {
		return err
	}
	var userIDs []msg.NodeID
	for i := 1; i <= users; i++ {
		id := msg.NodeID(i)
		if err := w.add(id, wire.Position{X: float64(i), Y: 2}, 0); err != nil {
			return err
		}
		userIDs = append(userIDs, id)
	}
	w.flush()

	phases := []struct {
		title string
		play  func()
	}{
		{"Discovery", func() {
			for _, u := range userIDs {
				w.input(u, session.Line("s"))
			}
			w.expire(nearBooth, farBooth)
			w.expire(userIDs...)
		}},
		{"Connection", func() {
			for _, u := range userIDs {
				w.input(u, session.Line("y"))
			}
		}},
		{"Experience requests", func() {
			for _, u := range userIDs {
				w.input(u, session.Line("y"))
			}
		}},
		{"Chat", func() {
			w.input(userIDs[0], session.Line("hello from the front row"))
			w.input(nearBooth, session.Line("welcome everyone"))
		}},
		{"Operator announcement", func() {
			w.input(nearBooth, session.Admin("b Show starts in five minutes"))
		}},
		{"Leave and promotion", func() {
			w.input(userIDs[0], session.Line(session.CommandLeave))
		}},
		{"Operator reports", func() {
			for _, cmd := range []string{"i", "a", "w", "r", "s"} {
				w.input(nearBooth, session.Admin(cmd))
			}
		}},
		{"Quit", func() {
			w.input(userIDs[len(userIDs)-1], session.Line(session.CommandQuit))
			w.input(nearBooth, session.Admin("c"))
		}},
	}

	for i, phase := range phases {
		fmt.Printf("\n=== Phase %d: %s ===\n", i+1, phase.title)
		phase.play()
		w.flush()
		for _, id := range w.order {
			fmt.Printf("  %-5s %s\n", id.Short(), w.nodes[id].State())
		}
		if pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return nil
			}
		}
	}

	fmt.Println("\n=== Simulation Complete ===")
	if hold && listen != "" {
		fmt.Printf("Monitor still serving on %s, press Ctrl-C to exit\n", listen)
		<-ctx.Done()
	}
	return nil
}

// world owns the nodes on one synchronous medium and drives their timers
type world struct {
	medium   *wire.Medium
	observer session.Observer
	nodes    map[msg.NodeID]*session.Node
	outs     map[msg.NodeID]*bytes.Buffer
	order    []msg.NodeID
}

func newWorld(medium *wire.Medium, observer session.Observer) *world {
	return &world{
		medium:   medium,
		observer: observer,
		nodes:    make(map[msg.NodeID]*session.Node),
		outs:     make(map[msg.NodeID]*bytes.Buffer),
	}
}

// scriptTimer never fires on its own; the script calls world.expire instead
type scriptTimer struct{}

func (scriptTimer) Start() {}

func (w *world) add(id msg.NodeID, pos wire.Position, capacity int) error {
	port, err := w.medium.Attach(id, pos)
	if err != nil {
		return err
	}
	out := &bytes.Buffer{}
	node, err := session.New(session.Config{
		ID:       id,
		Capacity: capacity,
		Link:     port,
		Timer:    scriptTimer{},
		Output:   out,
		Observer: w.observer,
	})
	if err != nil {
		return err
	}
	port.Bind(node)
	node.Start()

	w.nodes[id] = node
	w.outs[id] = out
	w.order = append(w.order, id)
	sort.Slice(w.order, func(i, j int) bool {
		a, b := w.order[i], w.order[j]
		if a.IsBooth() != b.IsBooth() {
			return a.IsBooth()
		}
		return a < b
	})
	return nil
}

// settle steps every node until the whole medium is quiet
func (w *world) settle() {
	for {
		busy := false
		for _, id := range w.order {
			if w.nodes[id].Step() {
				busy = true
			}
		}
		if !busy {
			return
		}
	}
}

func (w *world) input(id msg.NodeID, ev session.InputEvent) {
	w.nodes[id].Input(ev)
	w.settle()
}

func (w *world) expire(ids ...msg.NodeID) {
	for _, id := range ids {
		w.nodes[id].OnTimerExpired()
	}
	w.settle()
}

// flush prints buffered node output, one prefixed line at a time
func (w *world) flush() {
	for _, id := range w.order {
		out := w.outs[id]
		if out.Len() == 0 {
			continue
		}
		scanner := bufio.NewScanner(bytes.NewReader(out.Bytes()))
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				fmt.Printf("[%s] %s\n", id.Short(), line)
			}
		}
		out.Reset()
	}
}
