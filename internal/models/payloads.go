package models

// These structs define the payloads exchanged with the Cloud Functions entry point.

// GCSEvent is the payload of a Cloud Storage object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// RunOutputs lists where one run wrote its results.
type RunOutputs struct {
	Status       string   `json:"status"`
	PageCount    int      `json:"pageCount"`
	Destinations []string `json:"destinations"`
}
