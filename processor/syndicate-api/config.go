package syndicateapi

import "fmt"

// Config holds configuration for the syndicate-api component.
type Config struct {
	// StatuteTerms are the standardized terms printed on every Smart-Statute.
	StatuteTerms []string `json:"statute_terms"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StatuteTerms: []string{
			"Fractional commitment model applies.",
			"Lead founder maintains operational control.",
			"Investors receive quarterly pulse updates via SANGAM.",
			"Dispute resolution via Nepal Chamber of Commerce.",
		},
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if len(c.StatuteTerms) == 0 {
		return fmt.Errorf("statute_terms must not be empty")
	}
	return nil
}
