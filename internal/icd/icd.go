// Package icd is the typed message catalog the fleet exchanges over
// secureradio and the gateway bridge: host-to-device commands, the
// device-to-host status and session messages, and the PC-facing UART
// envelopes.
package icd

// RelayIdx identifies one of the four relay channels on a plant-light node.
type RelayIdx uint8

const (
	Relay0 RelayIdx = iota
	Relay1
	Relay2
	Relay3
)

// RelayState is the commanded or observed state of one relay.
type RelayState uint8

const (
	RelayOff RelayState = iota
	RelayOn
)

// HostToDevice is sent by the gateway (acting for the PC host) to a
// plant-light node.
type HostToDevice struct {
	Kind        HostToDeviceKind
	SetRelay    SetRelay
	SetCounters SetCounters
}

type HostToDeviceKind uint8

const (
	HostGeneralPing HostToDeviceKind = iota
	HostPlantLightSetRelay
	HostPlantLightSetCounters
)

// SetRelay commands a single relay to a state.
type SetRelay struct {
	Relay RelayIdx
	State RelayState
}

// SetCounters reseeds a relay's cumulative lifetime counters, e.g. after a
// board swap.
type SetCounters struct {
	Relay          RelayIdx
	OnLifetimeSec  uint32
	OffLifetimeSec uint32
}

// DeviceToHost is sent by a plant-light node to the gateway.
type DeviceToHost struct {
	Kind   DeviceToHostKind
	Status ShelfStatus
}

type DeviceToHostKind uint8

const (
	DeviceGeneralPong DeviceToHostKind = iota
	DeviceGeneralInitializeSession
	DeviceGeneralMessageRequest
	DevicePlantLightStatus
)

// ShelfStatus reports every relay's state and timing in one message.
type ShelfStatus struct {
	Relays [4]RelayStatus
}

// RelayStatus is the per-relay telemetry: current state, time in that
// state, and the cumulative lifetime counters.
type RelayStatus struct {
	Enabled            bool
	SecondsInState     uint32
	SecondsOnLifetime  uint32
	SecondsOffLifetime uint32
}

// PcToModem is the gateway-bridge envelope sent from the PC host to the
// gateway's modem-facing UART.
type PcToModem struct {
	IsPing bool
	Pipe   uint8
	Msg    HostToDevice
}

// ModemToPc is the gateway-bridge envelope sent from the gateway back to
// the PC host.
type ModemToPc struct {
	IsPong bool
	Pipe   uint8
	Msg    DeviceToHost
}
