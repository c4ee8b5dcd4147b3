package salarium

import (
	"context"

	"github.com/core-coin/salarium/pkg/logger"
)

// step is one local transaction of a cross-store operation. undo reverses a
// completed do and may be nil for the last step.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// runSaga runs steps in order. When a step fails, the steps already done are
// undone in reverse order and the original error is returned. Compensation
// runs detached from ctx so a cancelled caller cannot strand a half-applied
// operation.
func runSaga(ctx context.Context, log *logger.Logger, steps ...step) error {
	for i, st := range steps {
		err := st.do(ctx)
		if err == nil {
			continue
		}
		log.Warn("Saga step failed, compensating", "step", st.name, "error", err)

		detached := context.WithoutCancel(ctx)
		for j := i - 1; j >= 0; j-- {
			if steps[j].undo == nil {
				continue
			}
			if uerr := steps[j].undo(detached); uerr != nil {
				log.Error("Compensation failed, reconciliation required", "step", steps[j].name, "error", uerr)
			}
		}
		return err
	}
	return nil
}
