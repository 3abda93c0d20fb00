package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

// Stage marks which milestone of a category run an Event reports.
type Stage string

// Run-level stages bracket one category; entry-level stages trace a single
// listing entry through the pipeline.
const (
	StageRunStart  Stage = "RUN_START"
	StageRunDone   Stage = "RUN_DONE"
	StageRunFailed Stage = "RUN_FAILED"

	StageEntryResolved  Stage = "ENTRY_RESOLVED"
	StageEntryExtracted Stage = "ENTRY_EXTRACTED"
	StageEntryPersisted Stage = "ENTRY_PERSISTED"
	StageEntryFailed    Stage = "ENTRY_FAILED"
)

// Event captures one milestone while a category is scraped.
type Event struct {
	// RunID identifies the category run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Category is the notice category the run walks.
	Category notices.Category
	// Title optionally names the listing entry for entry-scoped stages.
	Title string
	// Artifact reports how the local PDF was obtained (ENTRY_RESOLVED).
	Artifact notices.ArtifactKind
	// Method reports which extraction pass won (ENTRY_EXTRACTED).
	Method notices.ExtractionMethod
	// Chars counts the extracted characters (ENTRY_EXTRACTED).
	Chars int
	// Dur captures latency for entry stages and whole runs.
	Dur time.Duration
	// Note carries low-volume context such as failure reasons.
	Note string

	// Terminal counters, populated on RUN_DONE and RUN_FAILED.
	Succeeded int
	Fallback  int
	Failed    int
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == ([16]byte{}) {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Category == "" {
		return errors.New("category is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunFailed, StageEntryPersisted:
	case StageEntryResolved:
		if e.Artifact == "" {
			return errors.New("resolved event requires an artifact kind")
		}
	case StageEntryExtracted:
		if e.Method == "" {
			return errors.New("extracted event requires a method")
		}
	case StageEntryFailed:
		if e.Note == "" {
			return errors.New("entry failure requires a note")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for ledger writes.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// Summary reconstructs the category outcome carried by a terminal run event.
func (e Event) Summary() notices.CategorySummary {
	status := notices.RunCompleted
	if e.Stage == StageRunFailed {
		status = notices.RunFailed
	}
	return notices.CategorySummary{
		Category:  e.Category,
		Status:    status,
		Started:   e.TS.Add(-e.Dur),
		Finished:  e.TS,
		Succeeded: e.Succeeded,
		Fallback:  e.Fallback,
		Failed:    e.Failed,
		ErrorText: e.Note,
	}
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
