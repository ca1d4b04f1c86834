// Package event provides a pub-sub event bus that carries execution progress
// from the orchestrator to whoever renders it.
//
// The orchestrator publishes from its own goroutine only, so subscribers
// observe events in lifecycle order: a wave's [WaveStartedEvent] precedes
// its [StepCompletedEvent]s, which precede its [WaveCompletedEvent]. The core
// never reads anything back from subscribers.
//
// # Event Categories
//
// Wave progress:
//   - [WaveStartedEvent], [WaveCompletedEvent], [StepCompletedEvent]
//
// Checkpoints:
//   - [SnapshotCreatedEvent], [SnapshotRestoredEvent]
//
// Recovery:
//   - [CorrectionAttemptedEvent]
//
// Lifecycle:
//   - [StateChangedEvent], [PlanCompletedEvent]
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeStepCompleted, func(e event.Event) {
//	    done := e.(event.StepCompletedEvent)
//	    fmt.Printf("step %d ok=%v\n", done.StepIndex, done.Success)
//	})
//	bus.SubscribeAll(func(e event.Event) { logger.Debug("event", "type", e.EventType()) })
package event
