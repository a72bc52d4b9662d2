// Command plant-light runs the embedded-node side of the fleet: a
// secure-radio PTX role paired with the four-relay shelf controller and
// its arbiter, driven by the priority task runtime.
//
// Flags are pflag long names with single-letter shorthands, a custom
// pflag.Usage, parse-then-validate.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/warthog618/go-gpiocdev"

	"github.com/jamesmunns-fleet/fleetradio/internal/esbsim"
	"github.com/jamesmunns-fleet/fleetradio/internal/fleetconfig"
	"github.com/jamesmunns-fleet/fleetradio/internal/fleetlog"
	"github.com/jamesmunns-fleet/fleetradio/internal/icd"
	"github.com/jamesmunns-fleet/fleetradio/internal/panicbuf"
	"github.com/jamesmunns-fleet/fleetradio/internal/relaybank"
	"github.com/jamesmunns-fleet/fleetradio/internal/secureradio"
	"github.com/jamesmunns-fleet/fleetradio/internal/taskrt"
	"github.com/jamesmunns-fleet/fleetradio/internal/timer"
	"github.com/jamesmunns-fleet/fleetradio/internal/watchdog"
)

var log = fleetlog.For("plant-light")

func main() {
	var configFile = pflag.StringP("config-file", "c", "fleet.yaml", "Fleet provisioning manifest.")
	var nodeName = pflag.StringP("node-name", "n", "", "This node's name, as assigned a pipe in the fleet manifest.")
	var localAddr = pflag.StringP("local-addr", "l", "127.0.0.1:9100", "UDP address this node's simulated radio link listens on.")
	var remoteAddr = pflag.StringP("remote-addr", "r", "127.0.0.1:9000", "UDP address of the fleet gateway's simulated radio link.")
	var gpioChip = pflag.StringP("gpio-chip", "g", "gpiochip0", "GPIO chip device for the relay lines.")
	var relayOffsets = pflag.IntSliceP("relay-lines", "R", []int{17, 27, 22, 23}, "GPIO line offsets for relay 0-3.")
	var simulate = pflag.BoolP("simulate", "s", false, "Use in-memory fake relay lines instead of real GPIO hardware.")
	var scheduleStart = pflag.String("schedule-start", "", "Daily lights-on time (HH:MM, local). Empty disables the scheduled program.")
	var scheduleEnd = pflag.String("schedule-end", "", "Daily lights-off time (HH:MM, local). Required with --schedule-start.")
	var overrideHold = pflag.Uint32("override-hold-seconds", 900, "How long a manual SetRelay outranks the scheduled program.")
	var panicFile = pflag.StringP("panic-file", "p", "plant-light.panic", "Persistent panic-message region file.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - embedded-node side of the fleet radio network.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nUsage: plant-light --node-name=shelf-a [options]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(1)
	}
	if *nodeName == "" {
		fmt.Fprintln(os.Stderr, "--node-name is required.")
		pflag.Usage()
		os.Exit(1)
	}

	panicRegion, err := panicbuf.Open(*panicFile, 512)
	if err != nil {
		log.Fatal("opening panic region", "err", err)
	}
	defer panicRegion.Close()
	if msg, ok := panicRegion.TakePending(); ok {
		log.Warn("recovered from previous crash", "panic", msg)
	}

	cfg, err := fleetconfig.Load(*configFile)
	if err != nil {
		log.Fatal("loading fleet manifest", "err", err)
	}
	pipe, ok := cfg.PipeForName(*nodeName)
	if !ok {
		log.Fatal("node not found in fleet manifest", "node", *nodeName)
	}

	link, err := esbsim.NewUDPLink(*localAddr, *remoteAddr, 8)
	if err != nil {
		log.Fatal("opening simulated radio link", "err", err)
	}

	clk := timer.NewRollingRTC(time.Second / timer.TicksPerSecond)
	defer clk.Stop()

	ptx, err := secureradio.NewPTX[icd.DeviceToHost, icd.HostToDevice](
		link, cfg.Key, clk, uint32(cfg.TickWindowSeconds)*timer.TicksPerSecond)
	if err != nil {
		log.Fatal("constructing secure-radio role", "err", err)
	}

	lines, cleanup := openRelayLines(*simulate, *gpioChip, *relayOffsets)
	defer cleanup()
	bank := relaybank.New(lines, clk)
	arb := relaybank.NewArbiter(bank, clk)

	program, err := parseSchedule(*scheduleStart, *scheduleEnd)
	if err != nil {
		log.Fatal("parsing schedule", "err", err)
	}

	radioWatchdog := watchdog.New("plant-light-radio-rx", watchdog.DefaultTimeout)

	// Announce a fresh boot so the gateway replays any SetRelay commands
	// issued while this node was unreachable.
	if err := ptx.Send(icd.DeviceToHost{Kind: icd.DeviceGeneralInitializeSession}, pipe); err != nil {
		log.Warn("initialize-session send failed", "err", err)
	}

	rt := taskrt.New()
	stop := make(chan struct{})

	go rt.Run(stop)
	rt.Periodic(taskrt.PriorityRxPeriodic, "rx", 50*time.Millisecond, func() {
		rx, err := ptx.Receive()
		if err != nil {
			log.Warn("receive error", "err", err)
			return
		}
		if rx == nil {
			return
		}
		radioWatchdog.Pet()
		handleCommand(bank, arb, rx.Msg, *overrideHold, func(reply icd.DeviceToHost) {
			if err := ptx.Send(reply, pipe); err != nil {
				log.Warn("reply send failed", "err", err)
			}
		})
	}, stop)
	rt.Periodic(taskrt.PriorityRelayPeriodic, "relay-arbiter", time.Second, func() {
		if program != nil {
			beOn := program.onNow(time.Now())
			for i := 0; i < 4; i++ {
				arb.Schedule(icd.RelayIdx(i), beOn)
			}
		}
		arb.Resolve()
		arb.CheckTimeout()
	}, stop)
	rt.Periodic(taskrt.PriorityRelayStatus, "status", 10*time.Second, func() {
		status := bank.CurrentState()
		if err := ptx.Send(icd.DeviceToHost{Kind: icd.DevicePlantLightStatus, Status: status}, pipe); err != nil {
			log.Warn("status send failed", "err", err)
		}
	}, stop)
	go radioWatchdog.Run(5*time.Second, func(name string) {
		panicRegion.Write(fmt.Sprintf("%s %s: watchdog silent past deadline", fleetlog.Timestamp(time.Now()), name))
		log.Error("radio-rx watchdog tripped", "name", name)
	}, stop)

	log.Info("plant-light started", "node", *nodeName, "pipe", pipe, "local_addr", *localAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	close(stop)
	log.Info("shutting down")
}

func handleCommand(bank *relaybank.Bank, arb *relaybank.Arbiter, msg icd.HostToDevice, overrideHold uint32, reply func(icd.DeviceToHost)) {
	switch msg.Kind {
	case icd.HostPlantLightSetRelay:
		arb.Override(msg.SetRelay.Relay, msg.SetRelay.State, overrideHold)
	case icd.HostPlantLightSetCounters:
		bank.SetCounters(msg.SetCounters.Relay, msg.SetCounters.OnLifetimeSec, msg.SetCounters.OffLifetimeSec)
	case icd.HostGeneralPing:
		reply(icd.DeviceToHost{Kind: icd.DeviceGeneralPong})
	}
}

// schedule is the daily lights-on window of the local lighting program.
type schedule struct {
	startMin int // minutes past midnight
	endMin   int
}

func parseSchedule(start, end string) (*schedule, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("--schedule-start and --schedule-end must be given together")
	}
	parse := func(s string) (int, error) {
		t, err := time.Parse("15:04", s)
		if err != nil {
			return 0, fmt.Errorf("%q is not HH:MM: %w", s, err)
		}
		return t.Hour()*60 + t.Minute(), nil
	}
	startMin, err := parse(start)
	if err != nil {
		return nil, err
	}
	endMin, err := parse(end)
	if err != nil {
		return nil, err
	}
	return &schedule{startMin: startMin, endMin: endMin}, nil
}

// onNow reports the commanded state for the current wall-clock time,
// handling windows that cross midnight.
func (s *schedule) onNow(now time.Time) icd.RelayState {
	cur := now.Hour()*60 + now.Minute()
	var on bool
	if s.startMin <= s.endMin {
		on = cur >= s.startMin && cur <= s.endMin
	} else {
		on = cur >= s.startMin || cur <= s.endMin
	}
	if on {
		return icd.RelayOn
	}
	return icd.RelayOff
}

// openRelayLines returns four relaybank.Line implementations, either real
// GPIO lines via go-gpiocdev or in-memory fakes for development off actual
// hardware.
func openRelayLines(simulate bool, chip string, offsets []int) ([4]relaybank.Line, func()) {
	var lines [4]relaybank.Line
	if simulate {
		fakes := make([]*fakeLine, 4)
		for i := range fakes {
			fakes[i] = &fakeLine{v: 1}
			lines[i] = fakes[i]
		}
		return lines, func() {}
	}

	requested := make([]*gpiocdev.Line, 4)
	for i := 0; i < 4; i++ {
		l, err := gpiocdev.RequestLine(chip, offsets[i], gpiocdev.AsOutput(1))
		if err != nil {
			log.Fatal("requesting gpio line", "chip", chip, "offset", offsets[i], "err", err)
		}
		requested[i] = l
		lines[i] = l
	}
	return lines, func() {
		for _, l := range requested {
			l.Close()
		}
	}
}

// fakeLine is an in-memory relaybank.Line for --simulate.
type fakeLine struct{ v int }

func (f *fakeLine) SetValue(v int) error { f.v = v; return nil }
func (f *fakeLine) Value() (int, error)  { return f.v, nil }
