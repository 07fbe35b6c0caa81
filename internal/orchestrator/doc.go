// Package orchestrator drives the perpetual cycle: monitors in parallel,
// then analyzer, narrative, and publisher in sequence, with recovery
// decisions applied between stages.
//
// A state machine guards phase legality. All work happens between events;
// the machine only refuses transitions that would skip or reorder a phase.
// Halted is terminal. Stop requests are honored only at cycle boundaries,
// so an interrupted run always leaves a complete checkpoint behind.
//
// Monitor stages run on a bounded worker pool, but every merge into the
// store happens on the orchestrator goroutine in completion order. Stages
// never see each other's same-cycle writes.
package orchestrator
