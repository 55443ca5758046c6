package consent

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the read-only view of the consent ledger this engine needs.
type Repository interface {
	// ListForPatient returns every consent entry recorded for the patient,
	// active or not. Callers filter with ActiveAt.
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*Consent, error)
}
