// Package seed loads demo data: founders for Jodi discovery, experts with
// marketplace profiles, syndicates and partner offers. Seeding is
// idempotent; records are matched by username, syndicate title and offer
// company name.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
)

// founderPoolLimit caps how many founders syndicates are assigned to.
const founderPoolLimit = 50

var (
	personas = []storage.Persona{storage.PersonaHacker, storage.PersonaHipster, storage.PersonaHustler}
	stages   = []storage.Stage{storage.StageIdea, storage.StageMVP, storage.StageRevenue}
)

// Report counts the records a run created.
type Report struct {
	Founders   int `json:"founders"`
	Experts    int `json:"experts"`
	Syndicates int `json:"syndicates"`
	Offers     int `json:"offers"`
}

func (r *Report) add(o Report) {
	r.Founders += o.Founders
	r.Experts += o.Experts
	r.Syndicates += o.Syndicates
	r.Offers += o.Offers
}

// Seeder writes fixtures into a store.
type Seeder struct {
	store  *storage.Store
	logger *slog.Logger
}

// New creates a Seeder.
func New(store *storage.Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{store: store, logger: logger}
}

// LoadAll reads the fixture files concurrently, keeping their order.
func LoadAll(ctx context.Context, paths []string) ([]*Fixture, error) {
	fixtures := make([]*Fixture, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		g.Go(func() error {
			f, err := Load(path)
			if err != nil {
				return err
			}
			fixtures[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fixtures, nil
}

// Run applies each fixture in order and returns what was created.
func (s *Seeder) Run(ctx context.Context, fixtures ...*Fixture) (*Report, error) {
	var total Report
	for _, f := range fixtures {
		r, err := s.apply(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", f.Name, err)
		}
		s.logger.Info("Fixture seeded",
			"fixture", f.Name,
			"founders", r.Founders,
			"experts", r.Experts,
			"syndicates", r.Syndicates,
			"offers", r.Offers)
		total.add(r)
	}
	return &total, nil
}

// apply seeds one fixture. Founders, experts and offers are independent
// and written concurrently; syndicates need the founders first.
func (s *Seeder) apply(ctx context.Context, f *Fixture) (Report, error) {
	var r Report

	hash, err := auth.HashPassword(f.Password)
	if err != nil {
		return r, err
	}

	// Each generator owns a stream so the output does not depend on
	// goroutine scheduling.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.seedFounders(gctx, f.Founders, hash, stream(f.Seed, 1))
		r.Founders = n
		return err
	})
	g.Go(func() error {
		n, err := s.seedExperts(gctx, f.Experts, hash, stream(f.Seed, 2))
		r.Experts = n
		return err
	})
	g.Go(func() error {
		n, err := s.seedOffers(gctx, f.Offers)
		r.Offers = n
		return err
	})
	if err := g.Wait(); err != nil {
		return r, err
	}

	n, err := s.seedSyndicates(ctx, f.Syndicates, stream(f.Seed, 3))
	r.Syndicates = n
	return r, err
}

func stream(seed, n uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, n))
}

// createUser inserts u unless the username is taken. It reports whether
// the user was created.
func (s *Seeder) createUser(ctx context.Context, u *storage.User) (bool, error) {
	if _, err := s.store.GetUserByUsername(ctx, u.Username); err == nil {
		return false, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Seeder) seedFounders(ctx context.Context, gen FounderSpec, hash string, rng *rand.Rand) (int, error) {
	var created int
	for i := 1; i <= gen.Count; i++ {
		u := &storage.User{
			Username:     fmt.Sprintf(gen.Username, i),
			Email:        fmt.Sprintf(gen.Email, i),
			PasswordHash: hash,
			Role:         storage.RoleFounder,
			Persona:      pick(rng, personas),
			StartupStage: pick(rng, stages),
			Province:     pick(rng, storage.Provinces),
			Bio:          pick(rng, gen.Bios),
			InterestTags: sample(rng, storage.InterestTags, 3),
			KarmaScore:   between(rng, gen.Karma),
		}
		if rng.Float64() > 0.5 {
			u.LinkedInProfile = fmt.Sprintf("https://linkedin.com/in/founder%d", i)
		}
		ok, err := s.createUser(ctx, u)
		if err != nil {
			return created, fmt.Errorf("founder %s: %w", u.Username, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (s *Seeder) seedExperts(ctx context.Context, gen ExpertSpec, hash string, rng *rand.Rand) (int, error) {
	var created int
	for i := 1; i <= gen.Count; i++ {
		u := &storage.User{
			Username:     fmt.Sprintf(gen.Username, i),
			Email:        fmt.Sprintf(gen.Email, i),
			PasswordHash: hash,
			Role:         storage.RoleExpert,
			Persona:      storage.PersonaNone,
			Province:     pick(rng, storage.Provinces),
			Bio:          pick(rng, gen.Bios),
			InterestTags: sample(rng, storage.InterestTags, 3),
			KarmaScore:   between(rng, gen.Karma),
		}
		profile := &storage.ExpertProfile{
			Specialization: pick(rng, gen.Specializations),
			Bio:            fmt.Sprintf("%s Expert #%d.", pick(rng, gen.Bios), i),
			HourlyRate:     money(rng, gen.HourlyRate),
			Rating:         money(rng, gen.Rating),
			IsVetted:       rng.Float64() < gen.VettedShare,
		}

		ok, err := s.createUser(ctx, u)
		if err != nil {
			return created, fmt.Errorf("expert %s: %w", u.Username, err)
		}
		if !ok {
			continue
		}
		profile.UserID = u.ID
		if err := s.store.UpsertExpertProfile(ctx, profile); err != nil {
			return created, fmt.Errorf("expert profile %s: %w", u.Username, err)
		}
		created++
	}
	return created, nil
}

func (s *Seeder) seedSyndicates(ctx context.Context, gen SyndicateSpec, rng *rand.Rand) (int, error) {
	if gen.Count == 0 {
		return 0, nil
	}
	founders, err := s.store.ListUsersByRole(ctx, storage.RoleFounder, founderPoolLimit)
	if err != nil {
		return 0, err
	}
	if len(founders) == 0 {
		s.logger.Warn("No founders to lead syndicates; skipping")
		return 0, nil
	}

	var created int
	for i := range gen.Count {
		var title string
		description := pick(rng, gen.Descriptions)
		if i < len(gen.Titles) {
			title = gen.Titles[i]
			description += " " + title + "."
		} else {
			title = fmt.Sprintf(gen.ExtraTitle, i+1)
		}
		goal := money(rng, gen.FundingGoal)
		share := gen.FundedShare.Min + rng.Float64()*(gen.FundedShare.Max-gen.FundedShare.Min)
		sy := &storage.Syndicate{
			Title:          title,
			FounderID:      pick(rng, founders).ID,
			Description:    description,
			FundingGoal:    goal,
			CurrentFunding: goal.Mul(decimal.NewFromFloat(share)).Round(2),
			IsActive:       true,
			InterestTags:   sample(rng, storage.InterestTags, 3),
		}

		exists, err := s.store.SyndicateTitleExists(ctx, title)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		if err := s.store.CreateSyndicate(ctx, sy); err != nil {
			return created, fmt.Errorf("syndicate %q: %w", title, err)
		}
		created++
	}
	return created, nil
}

// seedOffers upserts offers by company name. Only offers that did not
// exist before count as created.
func (s *Seeder) seedOffers(ctx context.Context, offers []OfferSpec) (int, error) {
	var created int
	for _, offer := range offers {
		exists, err := s.store.OfferExists(ctx, offer.Company)
		if err != nil {
			return created, err
		}
		tags := offer.InterestTags
		if tags == nil {
			tags = []string{}
		}
		o := &storage.RedeemOffer{
			CompanyName:     offer.Company,
			Description:     offer.Description,
			DiscountPercent: offer.DiscountPercent,
			PointsRequired:  offer.PointsRequired,
			InterestTags:    tags,
			IsActive:        !offer.Inactive,
		}
		if err := s.store.UpsertOffer(ctx, o); err != nil {
			return created, fmt.Errorf("offer %q: %w", offer.Company, err)
		}
		if !exists {
			created++
		}
	}
	return created, nil
}

func pick[T any](rng *rand.Rand, pool []T) T {
	return pool[rng.IntN(len(pool))]
}

// sample returns n distinct elements of pool in random order.
func sample[T any](rng *rand.Rand, pool []T, n int) []T {
	n = min(n, len(pool))
	out := make([]T, 0, n)
	for _, i := range rng.Perm(len(pool))[:n] {
		out = append(out, pool[i])
	}
	return out
}

func between(rng *rand.Rand, r Range[int]) int {
	return r.Min + rng.IntN(r.Max-r.Min+1)
}

// money draws a value in r rounded to cents.
func money(rng *rand.Rand, r Range[float64]) decimal.Decimal {
	return decimal.NewFromFloat(r.Min + rng.Float64()*(r.Max-r.Min)).Round(2)
}
