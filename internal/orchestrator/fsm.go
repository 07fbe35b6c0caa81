package orchestrator

import (
	"context"

	"github.com/looplab/fsm"
)

// Machine states. One working state per phase plus the two side states.
const (
	StateIdle          = "idle"
	StateMonitoring    = "monitoring"
	StateAnalyzing     = "analyzing"
	StateNarrating     = "narrating"
	StatePublishing    = "publishing"
	StateCycleComplete = "cycle_complete"
	StateRecovering    = "recovering"
	StateHalted        = "halted"
)

// Machine events.
const (
	eventBegin    = "begin"
	eventAnalyze  = "analyze"
	eventNarrate  = "narrate"
	eventPublish  = "publish"
	eventComplete = "complete"
	eventIdle     = "idle"
	eventRecover  = "recover"
	eventResume   = "resume"
	eventHalt     = "halt"
)

// workingStates are the states a failure can interrupt.
var workingStates = []string{
	StateMonitoring, StateAnalyzing, StateNarrating, StatePublishing,
}

// newMachine builds the phase state machine. No Dst leaves Halted: once
// the loop halts it stays halted until an external restart.
func newMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventBegin, Src: []string{StateIdle}, Dst: StateMonitoring},
			{Name: eventAnalyze, Src: []string{StateMonitoring}, Dst: StateAnalyzing},
			{Name: eventNarrate, Src: []string{StateAnalyzing}, Dst: StateNarrating},
			{Name: eventPublish, Src: []string{StateNarrating}, Dst: StatePublishing},
			{Name: eventComplete, Src: []string{StatePublishing}, Dst: StateCycleComplete},
			{Name: eventIdle, Src: []string{StateCycleComplete}, Dst: StateIdle},

			// A serial-stage failure detours through recovering; the cycle
			// then finishes with whatever state it has accumulated.
			{Name: eventRecover, Src: workingStates, Dst: StateRecovering},
			{Name: eventResume, Src: []string{StateRecovering}, Dst: StateCycleComplete},

			{Name: eventHalt, Src: append(append([]string{}, workingStates...),
				StateIdle, StateCycleComplete, StateRecovering), Dst: StateHalted},
		},
		fsm.Callbacks{},
	)
}

// step fires one event, panicking on an illegal transition. Transitions are
// driven solely by Step's fixed sequence, so an illegal one is a programming
// error, not a runtime condition.
func step(ctx context.Context, m *fsm.FSM, event string) {
	if err := m.Event(ctx, event); err != nil {
		panic("orchestrator: illegal transition " + m.Current() + " -> " + event + ": " + err.Error())
	}
}
