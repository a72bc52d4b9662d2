// Package discovery is ambient fleet-ops tooling: mDNS/DNS-SD advertisement
// of the gateway's PC-facing service so a fleet manager doesn't need a
// hardcoded address, and USB-serial hotplug detection that reports a modem
// being unplugged or plugged back in. Nothing here reopens a UART.
//
// The mDNS half uses brutella/dnssd's responder; the hotplug half watches
// the udev tty subsystem via jochenvg/go-udev's netlink monitor.
package discovery

import (
	"context"

	"github.com/brutella/dnssd"
	"github.com/jochenvg/go-udev"

	"github.com/jamesmunns-fleet/fleetradio/internal/fleetlog"
)

var log = fleetlog.For("discovery")

// ServiceType is the DNS-SD service type the gateway advertises.
const ServiceType = "_fleet-gateway._tcp"

// Advertiser announces the gateway's control port over mDNS/DNS-SD.
type Advertiser struct {
	responder *dnssd.Responder
	cancel    context.CancelFunc
}

// Advertise registers name on port under ServiceType and begins
// responding to mDNS queries in the background. Call Stop to withdraw the
// announcement.
func Advertise(name string, port int) (*Advertiser, error) {
	cfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
	}
	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, err
	}
	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, err
	}
	if _, err := responder.Add(svc); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
			log.Warn("dns-sd responder error", "err", err)
		}
	}()

	log.Info("advertising gateway service", "name", name, "port", port)
	return &Advertiser{responder: responder, cancel: cancel}, nil
}

// Stop withdraws the mDNS announcement.
func (a *Advertiser) Stop() {
	a.cancel()
}

// HotplugEvent describes one udev add/remove event for a matched device.
type HotplugEvent struct {
	Action string // "add" or "remove"
	Devnode string
}

// WatchUSBSerial watches the udev "tty" subsystem for USB-serial
// attach/detach events, sending a HotplugEvent for each one until ctx is
// canceled. cmd/fleet-gateway logs each event; it does not reattach its
// UART bridge when the modem reappears.
func WatchUSBSerial(ctx context.Context) (<-chan HotplugEvent, error) {
	u := udev.Udev{}
	monitor := u.NewMonitorFromNetlink("udev")
	if err := monitor.FilterAddMatchSubsystem("tty"); err != nil {
		return nil, err
	}

	deviceCh, err := monitor.DeviceChan(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan HotplugEvent)
	go func() {
		defer close(out)
		for {
			select {
			case dev, ok := <-deviceCh:
				if !ok {
					return
				}
				ev := HotplugEvent{Action: dev.Action(), Devnode: dev.Devnode()}
				log.Debug("usb-serial hotplug event", "action", ev.Action, "devnode", ev.Devnode)
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
