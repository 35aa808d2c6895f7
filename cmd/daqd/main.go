// Command daqd is the DAQ engine's demo entry point: it wires a fleet
// of simulated device drivers into a Registry, aggregates bundles,
// pushes them through a Writer over NATS, and exposes Prometheus
// metrics, all driven by cobra subcommands.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
