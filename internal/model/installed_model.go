package model

import "time"

// ModelStatus is the lifecycle state of an on-device model file.
type ModelStatus string

// Model statuses.
const (
	ModelStatusDownloading ModelStatus = "downloading"
	ModelStatusReady       ModelStatus = "ready"
	ModelStatusCorrupted   ModelStatus = "corrupted"
)

// InstalledModel is an on-device model known to the model store.
type InstalledModel struct {
	InstalledAt time.Time
	ID          string
	Name        string
	Path        string
	SHA256      string
	Status      ModelStatus
	SizeBytes   int64
	Selected    bool
}
