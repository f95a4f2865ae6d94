package karmaapi

// Config holds configuration for the karma-api component.
type Config struct {
	// RankOffersByInterest lists offers sharing an interest tag with the
	// caller ahead of the rest.
	RankOffersByInterest bool `json:"rank_offers_by_interest"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{RankOffersByInterest: true}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	return nil
}
