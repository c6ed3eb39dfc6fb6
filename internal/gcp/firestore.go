package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/adt1extractor/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RunLedger records one document per pipeline run in a Firestore collection.
type RunLedger struct {
	client     *firestore.Client
	collection string
}

// NewRunLedger returns a ledger writing to collection.
func NewRunLedger(client *firestore.Client, collection string) *RunLedger {
	return &RunLedger{client: client, collection: collection}
}

// Start adds a RUNNING record and returns its document ID.
func (l *RunLedger) Start(ctx context.Context, rec models.RunRecord) (string, error) {
	rec.Status = models.StatusRunning
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	docRef, _, err := l.client.Collection(l.collection).Add(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("failed to create run record: %w", err)
	}
	return docRef.ID, nil
}

// Finish sets the terminal status of a run. errDetails is stored only when non-empty.
func (l *RunLedger) Finish(ctx context.Context, id, status string, pageCount int, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
		{Path: "finishedAt", Value: time.Now()},
	}
	if pageCount > 0 {
		updates = append(updates, firestore.Update{Path: "pageCount", Value: pageCount})
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	if _, err := l.client.Collection(l.collection).Doc(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update run record %s: %w", id, err)
	}
	return nil
}

// Close releases the Firestore client.
func (l *RunLedger) Close() error {
	return l.client.Close()
}
