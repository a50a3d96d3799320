package amortization

import (
	"fmt"

	"go.uber.org/zap"
)

// ScheduleGenerator wraps BuildSchedule with debug logging for callers that
// run inside the service.
type ScheduleGenerator struct {
	logger *zap.Logger
}

// NewScheduleGenerator creates a new generator instance
func NewScheduleGenerator(logger *zap.Logger) *ScheduleGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleGenerator{logger: logger}
}

// Generate creates a complete amortization schedule for a loan
func (g *ScheduleGenerator) Generate(name string, p Params) ([]Entry, error) {
	schedule, err := BuildSchedule(p)
	if err != nil {
		g.logger.Debug(fmt.Sprintf("rejected schedule parameters for loan %s", name),
			zap.String("op", "amortization.Generate"),
			zap.Error(err),
		)
		return nil, err
	}

	if len(schedule) < p.TermMonths {
		g.logger.Debug(fmt.Sprintf("loan %s retired after %d of %d periods", name, len(schedule), p.TermMonths),
			zap.String("op", "amortization.Generate"),
		)
	}

	g.logger.Debug(fmt.Sprintf("generated %d schedule entries for loan %s", len(schedule), name),
		zap.String("op", "amortization.Generate"),
		zap.String("monthly_payment", schedule[0].TotalPayment.StringFixed(2)),
		zap.String("total_interest", TotalInterest(schedule).StringFixed(2)),
		zap.Stringer("final_entry", schedule[len(schedule)-1]),
	)
	return schedule, nil
}
