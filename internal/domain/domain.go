package domain

// TrackedRecord links a generator-created host record to the ledger.
type TrackedRecord struct {
	ID        int64          `json:"id"`
	Generator string         `json:"generator"`
	Kind      string         `json:"kind"`
	RecordID  int64          `json:"record_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at" format:"date-time"`
}

type KindCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

type Stats struct {
	Total  int         `json:"total"`
	ByKind []KindCount `json:"by_kind"`
}

// Log levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

type LogEntry struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp" format:"date-time"`
	Level     string `json:"level" enum:"info,warning,error,success"`
	Message   string `json:"message"`
	Generator string `json:"generator,omitempty"`
}

// Snapshot is the ephemeral progress state of a generation run.
type Snapshot struct {
	Generator    string  `json:"generator"`
	Kind         string  `json:"kind"`
	RunID        string  `json:"run_id,omitempty"`
	CurrentBatch int     `json:"current_batch"`
	TotalBatches int     `json:"total_batches"`
	Generated    int     `json:"generated"`
	Percentage   float64 `json:"percentage"`
	Timestamp    string  `json:"timestamp" format:"date-time"`
}

type GeneratorInfo struct {
	Slug           string            `json:"slug"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Icon           string            `json:"icon,omitempty"`
	IsActive       bool              `json:"is_active"`
	SupportedKinds map[string]string `json:"supported_kinds"`
	Stats          Stats             `json:"stats"`
}

type APIKey struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	KeyHash     string   `json:"key_hash"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}
