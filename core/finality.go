package core

import (
	"fmt"
	"time"

	"github.com/agoralabs/agora/common"
)

// FinalityStatus is the state of a finality record.
type FinalityStatus byte

const (
	Provisional FinalityStatus = iota
	Final
	Reverted
)

func (s FinalityStatus) String() string {
	switch s {
	case Provisional:
		return "Provisional"
	case Final:
		return "Final"
	case Reverted:
		return "Reverted"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

// FinalityRecord tracks an accepted result through its challenge
// window. Records are retained forever as audit trail; for a given
// transaction at most one record is Final at any time, and a Reverted
// record can never return to Final.
type FinalityRecord struct {
	TxID         common.Hash `json:"txId"`
	ResultDigest common.Hash `json:"resultDigest"`
	Round        uint32      `json:"round"`

	WindowOpen  time.Time `json:"windowOpen"`
	WindowClose time.Time `json:"windowClose"`

	// Depth is the position of this record in the appeal chain:
	// 0 for the original acceptance, +1 per upheld appeal.
	Depth uint32 `json:"depth"`

	Status FinalityStatus `json:"status"`
}

// WindowIsOpen indicates whether the challenge window is open at t.
func (fr *FinalityRecord) WindowIsOpen(t time.Time) bool {
	return fr.Status == Provisional && !t.Before(fr.WindowOpen) && t.Before(fr.WindowClose)
}

func (fr *FinalityRecord) String() string {
	return fmt.Sprintf("FinalityRecord{tx: %v, round: %d, digest: %v, status: %v}",
		fr.TxID, fr.Round, fr.ResultDigest, fr.Status)
}

// AppealStatus is the state of an appeal.
type AppealStatus byte

const (
	AppealOpen AppealStatus = iota
	AppealUpheld
	AppealDenied
)

func (s AppealStatus) String() string {
	switch s {
	case AppealOpen:
		return "Open"
	case AppealUpheld:
		return "Upheld"
	case AppealDenied:
		return "Denied"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

// Appeal is a bonded challenge against a provisional finality record.
type Appeal struct {
	TxID        common.Hash  `json:"txId"`
	Challenger  string       `json:"challenger"`
	Bond        uint64       `json:"bond"`
	TargetRound uint32       `json:"targetRound"`
	Depth       uint32       `json:"depth"`
	SubmittedAt time.Time    `json:"submittedAt"`
	Status      AppealStatus `json:"status"`
}

func (a *Appeal) String() string {
	return fmt.Sprintf("Appeal{tx: %v, challenger: %v, target round: %d, status: %v}",
		a.TxID, a.Challenger, a.TargetRound, a.Status)
}
