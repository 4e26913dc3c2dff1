package panel

import (
	"github.com/davidMbrooke/texecom-connect/protocol"
)

// Area is a grouping of zones that arms and disarms as a unit. Static
// attributes come from GET_AREA_DETAILS; State follows area events.
type Area struct {
	Number      int
	Name        string
	ExitDelay   uint16
	Entry1Delay uint16
	Entry2Delay uint16
	SecondEntry uint16
	State       protocol.AreaState
}

// AreaSnapshot is an immutable copy for readers outside the receive loop.
type AreaSnapshot struct {
	Number      int    `json:"number"`
	Name        string `json:"name"`
	ExitDelay   uint16 `json:"exitDelay"`
	Entry1Delay uint16 `json:"entry1Delay"`
	Entry2Delay uint16 `json:"entry2Delay"`
	SecondEntry uint16 `json:"secondEntry"`
	State       string `json:"state"`
}

func (a *Area) Snapshot() AreaSnapshot {
	return AreaSnapshot{
		Number:      a.Number,
		Name:        a.Name,
		ExitDelay:   a.ExitDelay,
		Entry1Delay: a.Entry1Delay,
		Entry2Delay: a.Entry2Delay,
		SecondEntry: a.SecondEntry,
		State:       a.State.String(),
	}
}
