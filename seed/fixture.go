package seed

import (
	"embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures/default.yaml
var fixturesFS embed.FS

// DefaultPassword is used when a fixture does not name one.
const DefaultPassword = "pass1234"

// Fixture describes a batch of seed data. Founders, experts and syndicates
// are generated from pools with a fixed seed; offers are listed verbatim.
type Fixture struct {
	// Name identifies the fixture in logs, usually its file path.
	Name string `yaml:"-"`

	Seed       uint64        `yaml:"seed"`
	Password   string        `yaml:"password"`
	Founders   FounderSpec   `yaml:"founders"`
	Experts    ExpertSpec    `yaml:"experts"`
	Syndicates SyndicateSpec `yaml:"syndicates"`
	Offers     []OfferSpec   `yaml:"offers"`
}

// FounderSpec generates Count founders named Username with %d replaced
// by 1..Count.
type FounderSpec struct {
	Count    int        `yaml:"count"`
	Username string     `yaml:"username"`
	Email    string     `yaml:"email"`
	Karma    Range[int] `yaml:"karma"`
	Bios     []string   `yaml:"bios"`
}

// ExpertSpec generates Count experts, each with a marketplace profile.
type ExpertSpec struct {
	Count           int            `yaml:"count"`
	Username        string         `yaml:"username"`
	Email           string         `yaml:"email"`
	Karma           Range[int]     `yaml:"karma"`
	HourlyRate      Range[float64] `yaml:"hourly_rate"`
	Rating          Range[float64] `yaml:"rating"`
	VettedShare     float64        `yaml:"vetted_share"`
	Bios            []string       `yaml:"bios"`
	Specializations []string       `yaml:"specializations"`
}

// SyndicateSpec generates Count syndicates led by seeded founders. Titles
// are used first; the rest are named ExtraTitle with %d replaced by their
// position.
type SyndicateSpec struct {
	Count        int            `yaml:"count"`
	Titles       []string       `yaml:"titles"`
	ExtraTitle   string         `yaml:"extra_title"`
	Descriptions []string       `yaml:"descriptions"`
	FundingGoal  Range[float64] `yaml:"funding_goal"`
	FundedShare  Range[float64] `yaml:"funded_share"`
}

// OfferSpec is one partner offer.
type OfferSpec struct {
	Company         string   `yaml:"company"`
	Description     string   `yaml:"description"`
	DiscountPercent int      `yaml:"discount_percent"`
	PointsRequired  int      `yaml:"points_required"`
	InterestTags    []string `yaml:"interest_tags"`
	Inactive        bool     `yaml:"inactive"`
}

// Range is an inclusive [min, max] pair written as a two-element list.
type Range[T int | float64] struct {
	Min T
	Max T
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Range[T]) UnmarshalYAML(node *yaml.Node) error {
	var pair []T
	if err := node.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 || pair[0] > pair[1] {
		return fmt.Errorf("line %d: range must be [min, max]", node.Line)
	}
	r.Min, r.Max = pair[0], pair[1]
	return nil
}

// Default returns the embedded demo fixture.
func Default() (*Fixture, error) {
	data, err := fixturesFS.ReadFile("fixtures/default.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded fixture: %w", err)
	}
	return Parse("default", data)
}

// Load reads a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(path, data)
}

// Glob returns the fixture files matching a doublestar pattern such as
// "fixtures/**/*.yaml", sorted.
func Glob(pattern string) ([]string, error) {
	if !doublestar.ValidatePathPattern(pattern) {
		return nil, fmt.Errorf("invalid fixture pattern %q", pattern)
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob fixtures: %w", err)
	}
	slices.Sort(matches)
	return matches, nil
}

// Parse decodes and validates a fixture.
func Parse(name string, data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", name, err)
	}
	f.Name = name
	if f.Password == "" {
		f.Password = DefaultPassword
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture %s: %w", name, err)
	}
	return &f, nil
}

// Validate checks that every generator has the pools it draws from.
func (f *Fixture) Validate() error {
	if f.Founders.Count > 0 {
		if err := checkPattern("founders.username", f.Founders.Username); err != nil {
			return err
		}
		if err := checkPattern("founders.email", f.Founders.Email); err != nil {
			return err
		}
		if len(f.Founders.Bios) == 0 {
			return fmt.Errorf("founders.bios must not be empty")
		}
	}
	if f.Experts.Count > 0 {
		if err := checkPattern("experts.username", f.Experts.Username); err != nil {
			return err
		}
		if err := checkPattern("experts.email", f.Experts.Email); err != nil {
			return err
		}
		if len(f.Experts.Bios) == 0 || len(f.Experts.Specializations) == 0 {
			return fmt.Errorf("experts.bios and experts.specializations must not be empty")
		}
		if f.Experts.VettedShare < 0 || f.Experts.VettedShare > 1 {
			return fmt.Errorf("experts.vetted_share must be between 0 and 1")
		}
	}
	if f.Syndicates.Count > 0 {
		if len(f.Syndicates.Descriptions) == 0 {
			return fmt.Errorf("syndicates.descriptions must not be empty")
		}
		if f.Syndicates.Count > len(f.Syndicates.Titles) {
			if err := checkPattern("syndicates.extra_title", f.Syndicates.ExtraTitle); err != nil {
				return err
			}
		}
		if f.Syndicates.FundingGoal.Min <= 0 {
			return fmt.Errorf("syndicates.funding_goal must be positive")
		}
	}
	for i, o := range f.Offers {
		if o.Company == "" {
			return fmt.Errorf("offers[%d].company is required", i)
		}
		if o.DiscountPercent < 0 || o.DiscountPercent > 100 {
			return fmt.Errorf("offers[%d].discount_percent must be between 0 and 100", i)
		}
		if o.PointsRequired <= 0 {
			return fmt.Errorf("offers[%d].points_required must be positive", i)
		}
	}
	return nil
}

func checkPattern(field, pattern string) error {
	if strings.Count(pattern, "%d") != 1 {
		return fmt.Errorf("%s must contain exactly one %%d", field)
	}
	return nil
}
