package discovery

import "fmt"

// Budget is the immutable set of ceilings bounding one search run's work.
type Budget struct {
	MaxPagesPerSearch    int
	MaxJobsPerSearch     int
	CircuitBreakerBlocks int
	DuplicatePageLimit   int
}

// DefaultBudget returns the documented defaults.
func DefaultBudget() Budget {
	return Budget{
		MaxPagesPerSearch:    50,
		MaxJobsPerSearch:     2000,
		CircuitBreakerBlocks: 3,
		DuplicatePageLimit:   3,
	}
}

// Validate enforces that every ceiling is positive.
func (b Budget) Validate() error {
	if b.MaxPagesPerSearch <= 0 {
		return fmt.Errorf("budget: max_pages_per_search must be > 0")
	}
	if b.MaxJobsPerSearch <= 0 {
		return fmt.Errorf("budget: max_jobs_discovered_per_search must be > 0")
	}
	if b.CircuitBreakerBlocks <= 0 {
		return fmt.Errorf("budget: circuit_breaker_blocks must be > 0")
	}
	if b.DuplicatePageLimit <= 0 {
		return fmt.Errorf("budget: duplicate_page_limit must be > 0")
	}
	return nil
}
