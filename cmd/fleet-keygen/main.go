// Command fleet-keygen provisions a new fleet: it generates the shared
// radio key and writes a fleet manifest cmd/plant-light and
// cmd/fleet-gateway can both load via internal/fleetconfig.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/jamesmunns-fleet/fleetradio/internal/fleetconfig"
)

func main() {
	var outFile = pflag.StringP("out", "o", "fleet.yaml", "Path to write the generated fleet manifest.")
	var baudRate = pflag.IntP("baud-rate", "b", 115200, "UART baud rate to record in the manifest.")
	var tickWindow = pflag.IntP("tick-window-seconds", "t", 5, "Secure-radio replay acceptance window, in seconds.")
	var nodeNames = pflag.StringSliceP("node", "n", []string{"shelf-a"}, "Node name to assign a pipe to. Repeatable.")
	var force = pflag.BoolP("force", "f", false, "Overwrite --out if it already exists.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - generate a fleet provisioning manifest.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nUsage: fleet-keygen --node=shelf-a --node=shelf-b -o fleet.yaml\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	if len(*nodeNames) == 0 {
		fmt.Fprintln(os.Stderr, "at least one --node is required.")
		os.Exit(1)
	}
	if len(*nodeNames) > 8 {
		fmt.Fprintln(os.Stderr, "too many nodes: ESB has 8 pipes (0-7).")
		os.Exit(1)
	}
	if !*force {
		if _, err := os.Stat(*outFile); err == nil {
			fmt.Fprintf(os.Stderr, "%s already exists; pass --force to overwrite.\n", *outFile)
			os.Exit(1)
		}
	}

	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		fmt.Fprintf(os.Stderr, "generating key: %v\n", err)
		os.Exit(1)
	}

	nodes := make([]fleetconfig.NodeConfig, len(*nodeNames))
	for i, name := range *nodeNames {
		nodes[i] = fleetconfig.NodeConfig{Name: name, Pipe: uint8(i)}
	}

	manifest := fleetconfig.Manifest{
		KeyHex:            hex.EncodeToString(key[:]),
		BaudRate:          *baudRate,
		TickWindowSeconds: *tickWindow,
		Nodes:             nodes,
	}

	out, err := yaml.Marshal(manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding manifest: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outFile, out, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", *outFile, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s with %d node(s)\n", *outFile, len(nodes))
}
