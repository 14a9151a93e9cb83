package marketdata

import "github.com/kestrel-labs/daytrader-engine/internal/memgov"

// GovernorAdapter satisfies MemoryGovernor for a *memgov.Governor. Go
// requires an exact method-signature match for interface satisfaction,
// and memgov.Limits and marketdata.Limits are distinct named types with
// identical fields, so ConfiguredLimits needs this field-by-field
// conversion rather than a direct method-value pass.
type GovernorAdapter struct {
	*memgov.Governor
}

// NewGovernorAdapter wraps a *memgov.Governor for use as a
// marketdata.MemoryGovernor.
func NewGovernorAdapter(g *memgov.Governor) *GovernorAdapter {
	return &GovernorAdapter{Governor: g}
}

// ConfiguredLimits converts memgov.Limits to this package's own Limits
// type.
func (a *GovernorAdapter) ConfiguredLimits() Limits {
	l := a.Governor.ConfiguredLimits()
	return Limits{
		MaxConcurrentFetch:  l.MaxConcurrentFetch,
		MaxConcurrentBatch:  l.MaxConcurrentBatch,
		DynamoDBBatchSize:   l.DynamoDBBatchSize,
		MarketDataBatchSize: l.MarketDataBatchSize,
	}
}
