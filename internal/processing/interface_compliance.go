package processing

import (
	"esim_battle_cache/internal/esim"
	"esim_battle_cache/internal/storage"
)

// Compile-time interface compliance checks
// These will cause compilation errors if the types don't implement the interfaces

var (
	_ BattleClient = (*esim.Client)(nil)
	_ Store        = (*storage.Store)(nil)
)
