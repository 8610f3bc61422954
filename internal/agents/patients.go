package agents

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrPatientNotFound = errors.New("patient not found")

// NewPatientDirectory creates a postgres-backed directory when configured, otherwise in-memory.
func NewPatientDirectory(ctx context.Context, databaseURL string) (PatientDirectory, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryDirectory(SeedPatients()...), nil
	}
	dir, err := NewPostgresDirectory(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := dir.Seed(ctx, SeedPatients()...); err != nil {
		_ = dir.Close()
		return nil, err
	}
	return dir, nil
}

// normalizeName folds case and whitespace so "john  SMITH" finds "John Smith".
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// SeedPatients returns the demo discharge reports.
func SeedPatients() []Patient {
	return []Patient{
		{
			Name:             "John Smith",
			DischargeDate:    time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
			PrimaryDiagnosis: "Chronic Kidney Disease Stage 3",
			Medications: []string{
				"Lisinopril 10mg daily",
				"Furosemide 20mg twice daily",
				"Calcium carbonate 500mg with meals",
			},
			DietaryRestrictions:   "Low sodium (2g/day), fluid restriction (1.5L/day), limit potassium",
			FollowUp:              "Nephrology clinic in 2 weeks",
			WarningSigns:          "Swelling in legs, shortness of breath, decreased urine output",
			DischargeInstructions: "Monitor blood pressure daily and weigh yourself every morning",
		},
		{
			Name:             "Abhishek B Shetty",
			DischargeDate:    time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC),
			PrimaryDiagnosis: "Acute Kidney Injury, recovering",
			Medications: []string{
				"Amlodipine 5mg daily",
				"Sodium bicarbonate 650mg twice daily",
			},
			DietaryRestrictions:   "Moderate protein, avoid NSAIDs and herbal supplements",
			FollowUp:              "Repeat kidney function tests in 1 week",
			WarningSigns:          "Reduced urination, confusion, nausea, chest pain",
			DischargeInstructions: "Stay hydrated within your fluid limit and avoid over-the-counter painkillers",
		},
	}
}
