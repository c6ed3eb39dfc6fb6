package models

import "time"

// Run statuses stored in RunRecord.Status.
const (
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// RunRecord is the ledger entry for one pipeline run over a single PDF.
type RunRecord struct {
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	Provider         string    `firestore:"provider,omitempty"`
	Model            string    `firestore:"model,omitempty"`
	ExecutionID      string    `firestore:"executionId,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
	FinishedAt       time.Time `firestore:"finishedAt,omitempty"`
}
