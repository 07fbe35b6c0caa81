// Package scenario runs the loop against scripted feeds.
//
// A scenario is a YAML file: per-cycle market ticks, mentions, and news
// items, plus scripted generator and poster results. The runner wires a
// real engine around the scripts with a fixed clock and sequential
// candidate IDs, so a scenario always produces the same trace. Traces
// back golden-file tests and the `gonzo run --scenario` command.
//
// A feed batch scripted for a cycle is offered exactly once; if the
// consuming stage is parked by recovery that cycle, the batch is dropped,
// not deferred.
package scenario
