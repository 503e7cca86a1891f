package validator

import (
	"math/rand"

	"github.com/xshift007/lab3-distri/internal/domain"
)

// Chaos simulates transient network failures to exercise the retry path.
// Attempts 0 and 1 each fail with probability 0.3; later attempts always
// succeed so a chaos-only failure can never exhaust the retries.
func Chaos(rng *rand.Rand) func(attempt int) error {
	return func(attempt int) error {
		if attempt < 2 && rng.Float64() < 0.3 {
			return domain.NewRetryable("simulated network failure (chaos testing)", nil)
		}
		return nil
	}
}
