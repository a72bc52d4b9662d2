// Command fleet-gateway bridges the fleet's secure radio link to a
// PC-facing UART, advertises itself over mDNS so a fleet manager doesn't
// need a hardcoded address, and watches for USB-serial hotplug events.
//
// Flags are pflag long names with single-letter shorthands, parsed then
// validated.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/pkg/term"
	"github.com/spf13/pflag"

	"github.com/jamesmunns-fleet/fleetradio/internal/discovery"
	"github.com/jamesmunns-fleet/fleetradio/internal/esbsim"
	"github.com/jamesmunns-fleet/fleetradio/internal/fleetconfig"
	"github.com/jamesmunns-fleet/fleetradio/internal/fleetlog"
	"github.com/jamesmunns-fleet/fleetradio/internal/gateway"
	"github.com/jamesmunns-fleet/fleetradio/internal/icd"
	"github.com/jamesmunns-fleet/fleetradio/internal/panicbuf"
	"github.com/jamesmunns-fleet/fleetradio/internal/secureradio"
	"github.com/jamesmunns-fleet/fleetradio/internal/uartdma"
)

var log = fleetlog.For("fleet-gateway")

func main() {
	var configFile = pflag.StringP("config-file", "c", "fleet.yaml", "Fleet provisioning manifest.")
	var localAddr = pflag.StringP("local-addr", "l", "127.0.0.1:9000", "UDP address this gateway's simulated radio link listens on.")
	var remoteAddr = pflag.StringP("remote-addr", "r", "127.0.0.1:9100", "UDP address of the plant-light node's simulated radio link.")
	var uartDevice = pflag.StringP("uart-device", "u", "", "Serial device to open for the PC-facing UART (e.g. /dev/ttyUSB0). Ignored if --pty is set.")
	var usePty = pflag.BoolP("pty", "t", false, "Create a pseudo-terminal for the PC-facing UART instead of opening a real serial device, printing the PC-side path.")
	var advertiseName = pflag.StringP("advertise-name", "a", "", "Name to advertise over mDNS/DNS-SD. Empty disables advertisement.")
	var advertisePort = pflag.IntP("advertise-port", "P", 0, "Port to advertise alongside --advertise-name.")
	var watchUSB = pflag.BoolP("watch-usb", "w", false, "Watch udev for USB-serial hotplug events and log them.")
	var panicFile = pflag.StringP("panic-file", "p", "fleet-gateway.panic", "Persistent panic-message region file.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - PC<->radio bridge for the fleet radio network.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nUsage: fleet-gateway [options]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
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

	link, err := esbsim.NewUDPLink(*localAddr, *remoteAddr, 8)
	if err != nil {
		log.Fatal("opening simulated radio link", "err", err)
	}
	prx, err := secureradio.NewPRX[icd.HostToDevice, icd.DeviceToHost](link, cfg.Key)
	if err != nil {
		log.Fatal("constructing secure-radio role", "err", err)
	}

	phy, uartCleanup := openUARTPhy(*usePty, *uartDevice, cfg.BaudRate)
	defer uartCleanup()

	uartBridge := uartdma.New(phy, 4096, 4096, uartdma.DefaultBlockSize, uartdma.DefaultIdleTimeout)
	uartBridge.Start()
	defer uartBridge.Stop()

	gw := gateway.New(prx, uartBridge)

	stop := make(chan struct{})

	if *advertiseName != "" {
		adv, err := discovery.Advertise(*advertiseName, *advertisePort)
		if err != nil {
			log.Warn("mDNS advertisement failed", "err", err)
		} else {
			defer adv.Stop()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *watchUSB {
		events, err := discovery.WatchUSBSerial(ctx)
		if err != nil {
			log.Warn("usb hotplug watch failed", "err", err)
		} else {
			go func() {
				for ev := range events {
					log.Info("usb-serial hotplug", "action", ev.Action, "devnode", ev.Devnode)
				}
			}()
		}
	}

	go pumpLoop("radio->uart", stop, func() (bool, error) { return gw.PumpRadioToUART() })
	go pumpLoop("uart->radio", stop, func() (bool, error) { return gw.PumpUARTToRadio() })
	go gw.RadioWatchdog.Run(10*time.Second, func(name string) {
		panicRegion.Write(fmt.Sprintf("%s %s: watchdog silent past deadline", fleetlog.Timestamp(time.Now()), name))
		log.Error("watchdog tripped", "name", name)
	}, stop)
	go gw.UARTWatchdog.Run(10*time.Second, func(name string) {
		panicRegion.Write(fmt.Sprintf("%s %s: watchdog silent past deadline", fleetlog.Timestamp(time.Now()), name))
		log.Error("watchdog tripped", "name", name)
	}, stop)

	log.Info("fleet-gateway started", "local_addr", *localAddr, "remote_addr", *remoteAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	close(stop)
	log.Info("shutting down")
}

// pumpLoop repeatedly calls pump, backing off briefly whenever there was
// nothing to do so the goroutine doesn't spin a CPU core.
func pumpLoop(name string, stop <-chan struct{}, pump func() (bool, error)) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		did, err := pump()
		if err != nil {
			log.Warn("pump error", "direction", name, "err", err)
		}
		if !did {
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// openUARTPhy returns the io.ReadWriter the UART bridge treats as the
// physical wire: a real serial port via github.com/pkg/term, or a pty
// pair for development without hardware, printing the client-facing path.
func openUARTPhy(usePty bool, device string, baud int) (io.ReadWriter, func()) {
	if usePty {
		ptmx, pts, err := pty.Open()
		if err != nil {
			log.Fatal("opening pty pair", "err", err)
		}
		log.Info("pty ready, connect your PC-side client here", "path", pts.Name())
		return ptmx, func() {
			ptmx.Close()
			pts.Close()
		}
	}

	if device == "" {
		log.Fatal("either --uart-device or --pty is required")
	}
	t, err := term.Open(device, term.RawMode)
	if err != nil {
		log.Fatal("opening serial device", "device", device, "err", err)
	}
	if err := t.SetSpeed(baud); err != nil {
		log.Warn("setting baud rate failed", "baud", baud, "err", err)
	}
	return t, func() { t.Close() }
}
