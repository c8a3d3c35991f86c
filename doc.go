/*
Package ensemble coordinates multi-step command sequences against one or
more concurrently connected peripheral devices over a short-range,
fragment-limited radio transport.

It reconstructs application-level messages from size-limited transport
fragments per device, tolerating duplicate and out-of-order delivery, and
drives user-authored actions (ordered capability invocations with
inter-step delays) against every connected device at once, in single-pass
or repeat-until-stopped mode, bracketing each run with start/stop signals
so devices are never left in a started state.

# Architecture

The Orchestrator is the composition root. Transport channels arrive through
a ports.Dialer, actions live behind a ports.ActionStore, and every other
component (session registry, fragment reassembler, command bus, execution
engine) is constructed and owned here. Serving surfaces (HTTP, MCP, CLI)
only ever talk to the Orchestrator.

# Usage

	store, err := sqlite.Open(ctx, "ensemble.db")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	o := ensemble.New(store, ws.NewDialer(endpoints))
	defer o.Close()

	if _, err := o.Connect(ctx, ports.DeviceSelector{Prefix: "pup-"}); err != nil {
		log.Fatal(err)
	}
	if err := o.Run(ctx, "greet", domain.ModeSinglePass); err != nil {
		log.Fatal(err)
	}

Progress is observable through Events, a broadcast stream of session
membership changes, run phase transitions, per-instruction outcomes, and
capability refreshes.
*/
package ensemble
