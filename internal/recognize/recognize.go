// Package recognize defines the contracts for the AI collaborators: image
// recognition of prescriptions and pills, audio transcription, and medication
// command parsing. Remote implementations live behind circuit breakers; the
// local parser is the always-available fallback.
package recognize

import "context"

// DrugEntry is one medication row read off a prescription.
type DrugEntry struct {
	DrugName     string   `json:"drug_name"`
	DoseQuantity string   `json:"dose_quantity"`
	Frequency    string   `json:"frequency"`
	TimeSlots    []string `json:"time_slots"`
}

// Prescription is the structured result of scanning a prescription image.
type Prescription struct {
	Drugs      []DrugEntry `json:"drugs"`
	ClinicName string      `json:"clinic_name"`
	VisitDate  string      `json:"visit_date"`
}

// Pill describes one identified pill.
type Pill struct {
	DrugID   string `json:"drug_id"`
	DrugName string `json:"drug_name"`
	Shape    string `json:"shape"`
	Color    string `json:"color"`
	MainUse  string `json:"main_use"`
}

// PrescriptionRecognizer extracts structured medication data from a
// prescription photo.
type PrescriptionRecognizer interface {
	RecognizePrescription(ctx context.Context, image []byte) (*Prescription, error)
}

// PillRecognizer identifies pills in a photo.
type PillRecognizer interface {
	RecognizePills(ctx context.Context, image []byte) ([]Pill, error)
}

// Transcriber converts a voice message into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// MedicationParser extracts a medication command from free text. A nil
// result with nil error means the text is not a medication command.
type MedicationParser interface {
	ParseMedication(text string) *ParsedMedication
}
