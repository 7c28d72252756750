// Package telemetry provides observability instrumentation for the Citizen
// Agent CLI: structured logging (zerolog), distributed tracing
// (OpenTelemetry), Prometheus metrics, and a structured event sink.
//
// The event sink is the contract between the provisioning sequencer and the
// presentation layer. The sequencer never writes to the console; it publishes
// phase-start, step, warning, error and fatal events, and the CLI renderer,
// the zerolog sink and the run-history store subscribe. This keeps the
// sequencer independently testable by asserting on emitted events.
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil {
//	    // handle
//	}
//	defer tel.Shutdown(context.Background())
//
//	tel.Events.Subscribe(func(ev telemetry.Event) {
//	    fmt.Printf("[%s] %s\n", ev.Type, ev.Message)
//	})
package telemetry
