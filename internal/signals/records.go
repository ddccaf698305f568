package signals

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spendsense/spendsense/internal/domain"
)

// Records explodes a bundle into the four persisted signal rows, one per
// signal type, all stamped with the same computation time.
func Records(bundle domain.SignalBundle, computedAt time.Time) ([]domain.Signal, error) {
	payloads := []struct {
		signalType domain.SignalType
		value      any
	}{
		{domain.SignalSubscriptions, bundle.Subscriptions},
		{domain.SignalCreditUtilization, bundle.CreditUtilization},
		{domain.SignalSavingsBehavior, bundle.SavingsBehavior},
		{domain.SignalIncomeStability, bundle.IncomeStability},
	}

	records := make([]domain.Signal, 0, len(payloads))
	for _, p := range payloads {
		data, err := json.Marshal(p.value)
		if err != nil {
			return nil, fmt.Errorf("Records: marshaling %s for %s: %w", p.signalType, bundle.UserID, err)
		}
		records = append(records, domain.Signal{
			UserID:     bundle.UserID,
			TimeWindow: bundle.TimeWindow,
			SignalType: p.signalType,
			Data:       data,
			ComputedAt: computedAt,
		})
	}
	return records, nil
}

// Bundle reassembles a signal bundle from persisted rows. Rows for other
// users or windows are ignored; missing signal types stay zero-valued, the
// same degradation the detectors apply to absent data.
func Bundle(userID string, window domain.TimeWindow, records []domain.Signal) (domain.SignalBundle, error) {
	bundle := domain.SignalBundle{
		UserID:     userID,
		TimeWindow: window,
	}
	for _, rec := range records {
		if rec.UserID != userID || rec.TimeWindow != window {
			continue
		}
		var err error
		switch rec.SignalType {
		case domain.SignalSubscriptions:
			err = json.Unmarshal(rec.Data, &bundle.Subscriptions)
		case domain.SignalCreditUtilization:
			err = json.Unmarshal(rec.Data, &bundle.CreditUtilization)
		case domain.SignalSavingsBehavior:
			err = json.Unmarshal(rec.Data, &bundle.SavingsBehavior)
		case domain.SignalIncomeStability:
			err = json.Unmarshal(rec.Data, &bundle.IncomeStability)
		default:
			continue
		}
		if err != nil {
			return domain.SignalBundle{}, fmt.Errorf("Bundle: unmarshaling %s for %s: %w", rec.SignalType, userID, err)
		}
	}
	return bundle, nil
}
