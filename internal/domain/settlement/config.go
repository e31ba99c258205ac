package settlement

import "stockpos/internal/core/numerator"

const (
	salePrefix   = "SALE"
	returnPrefix = "RET"

	// Bills are fiscal documents and are numbered one by one.
	numeratorStrategy = numerator.StrategyStrict
)
