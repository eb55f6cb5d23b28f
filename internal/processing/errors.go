package processing

import "fmt"

// SyncError reports where synchronization stopped. Everything before that
// point is committed, so a later call resumes from the stored cursor.
type SyncError struct {
	BattleID uint64
	RoundID  uint16 // 0 when the battle snapshot itself failed
	Err      error
}

func (e *SyncError) Error() string {
	if e.RoundID == 0 {
		return fmt.Sprintf("sync stopped at battle %d: %v", e.BattleID, e.Err)
	}
	return fmt.Sprintf("sync stopped at battle %d round %d: %v", e.BattleID, e.RoundID, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
