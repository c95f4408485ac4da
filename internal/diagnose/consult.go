package diagnose

import (
	"context"

	"github.com/hyperjump/medsage/internal/models"
	"go.uber.org/zap"
)

// Consultant combines the reasoner with the escalation detector.
type Consultant struct {
	reasoner *Reasoner
	detector *EscalationDetector
	logger   *zap.Logger
}

// NewConsultant creates a consultant. logger may be nil.
func NewConsultant(reasoner *Reasoner, detector *EscalationDetector, logger *zap.Logger) *Consultant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consultant{reasoner: reasoner, detector: detector, logger: logger}
}

// Consult diagnoses symptoms against hits. The detector decides IsEmergency; the reasoner's
// own flag is kept only when the detector call fails.
func (c *Consultant) Consult(ctx context.Context, symptoms string, hits []models.RetrievalHit) models.Diagnosis {
	d := c.reasoner.Diagnose(ctx, symptoms, hits)
	emergency, err := c.detector.Check(ctx, symptoms)
	if err != nil {
		c.logger.Warn("escalation check failed, keeping structured flag", zap.Error(err))
		return d
	}
	d.IsEmergency = emergency
	return d
}
