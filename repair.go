package main

import (
	"fmt"
	"os"
	"time"

	"sd-index/utils"
)

// HealthState tracks where the catalog sits in a repair cycle.
type HealthState int

const (
	StateHealthy HealthState = iota
	StateQuarantined
	StateRebuilding
)

func (state HealthState) String() string {
	switch state {
	case StateHealthy:
		return "healthy"
	case StateQuarantined:
		return "quarantined"
	case StateRebuilding:
		return "rebuilding"
	}

	return "unknown"
}

// storeRepairer is the narrow surface the repair cycle needs, so tests can
// simulate corruption without a real database file.
type storeRepairer interface {
	IntegrityCheck() error
	Quarantine() (string, error)
	Rebuild() error
}

// CheckAndRepair verifies catalog integrity and, on corruption, quarantines
// the store aside and rebuilds it fresh. Corruption is a recoverable
// condition: the quarantined file is kept, never silently discarded.
func (ctx *Context) CheckAndRepair() error {
	transitions, err := runRepairCycle(&sqliteRepairer{ctx: ctx})

	if len(transitions) > 1 {
		utils.ConsoleAndLogPrintf("Catalog repair cycle: %v", transitions)
	}

	return err
}

func runRepairCycle(store storeRepairer) ([]HealthState, error) {
	transitions := []HealthState{StateHealthy}

	if err := store.IntegrityCheck(); err == nil {
		return transitions, nil
	}

	transitions = append(transitions, StateQuarantined)
	quarantinePath, err := store.Quarantine()

	if err != nil {
		return transitions, fmt.Errorf("could not quarantine corrupt catalog: %w", err)
	}

	utils.ConsoleAndLogPrintf("Corrupt catalog moved to \"%s\". Rebuilding...", quarantinePath)
	transitions = append(transitions, StateRebuilding)

	if err = store.Rebuild(); err != nil {
		return transitions, fmt.Errorf("could not rebuild catalog: %w", err)
	}

	transitions = append(transitions, StateHealthy)
	return transitions, nil
}

type sqliteRepairer struct {
	ctx *Context
}

func (repairer *sqliteRepairer) IntegrityCheck() error {
	var result string
	queryResult := repairer.ctx.DB.Raw("PRAGMA integrity_check").Scan(&result)

	if queryResult.Error != nil {
		return fmt.Errorf("%w: %v", ErrCatalogCorrupt, queryResult.Error)
	}

	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrCatalogCorrupt, result)
	}

	return nil
}

func (repairer *sqliteRepairer) Quarantine() (string, error) {
	db, err := repairer.ctx.DB.DB()

	if err == nil {
		// Release the file handles before renaming
		_ = db.Close()
	}

	dbPath := repairer.ctx.Config.DBPath
	quarantinePath := fmt.Sprintf("%s.corrupt-%s.db", dbPath, time.Now().Format("20060102150405"))

	if err = os.Rename(dbPath, quarantinePath); err != nil {
		return "", err
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		sidecar := dbPath + suffix

		if IsFile(sidecar) {
			_ = os.Rename(sidecar, quarantinePath+suffix)
		}
	}

	return quarantinePath, nil
}

func (repairer *sqliteRepairer) Rebuild() error {
	repairer.ctx.DB = initDb(repairer.ctx.Config)
	return nil
}
