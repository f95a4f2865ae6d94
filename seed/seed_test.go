package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
	"github.com/c360studio/sangam/storage/storagetest"
)

const smallFixture = `
seed: 7
password: letmein99
founders:
  count: 3
  username: pilot_founder_%d
  email: pilot%d@founders.test
  karma: [5, 5]
  bios: ["Building in Pokhara."]
experts:
  count: 2
  username: pilot_expert_%d
  email: pilot%d@experts.test
  karma: [1, 3]
  hourly_rate: [40, 40]
  rating: [4.5, 4.5]
  vetted_share: 1
  bios: ["Tax advisor."]
  specializations: ["Tax"]
syndicates:
  count: 2
  titles: ["Pilot Fund"]
  extra_title: "Pilot Fund %d"
  descriptions: ["A pilot syndicate."]
  funding_goal: [1000, 1000]
  funded_share: [0.5, 0.5]
offers:
  - company: Pilot Cloud
    description: Hosting credits
    discount_percent: 20
    points_required: 40
    interest_tags: [Tech]
  - company: Retired Partner
    description: No longer offered
    discount_percent: 5
    points_required: 10
    inactive: true
`

func TestDefaultFixture(t *testing.T) {
	store := storagetest.Open(t)
	ctx := context.Background()

	f, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "default", f.Name)

	s := New(store, nil)
	report, err := s.Run(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, &Report{Founders: 40, Experts: 35, Syndicates: 35, Offers: 17}, report)

	counts, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 75, counts.Total)

	founder, err := store.GetUserByUsername(ctx, "founder_jodi_1")
	require.NoError(t, err)
	assert.Equal(t, storage.RoleFounder, founder.Role)
	assert.Contains(t, storage.Provinces, founder.Province)
	assert.Len(t, founder.InterestTags, 3)
	assert.GreaterOrEqual(t, founder.KarmaScore, 10)
	assert.LessOrEqual(t, founder.KarmaScore, 200)
	assert.True(t, auth.CheckPassword(founder.PasswordHash, DefaultPassword))

	expert, err := store.GetUserByUsername(ctx, "expert_7")
	require.NoError(t, err)
	profile, err := store.GetExpertByUser(ctx, expert.ID)
	require.NoError(t, err)
	assert.Contains(t, profile.Bio, "Expert #7.")
	assert.True(t, profile.HourlyRate.Equal(profile.HourlyRate.Round(2)))

	syndicates, err := store.ListSyndicates(ctx)
	require.NoError(t, err)
	require.Len(t, syndicates, 35)
	for _, sy := range syndicates {
		assert.True(t, sy.CurrentFunding.LessThan(sy.FundingGoal), sy.Title)
	}

	t.Run("second run creates nothing", func(t *testing.T) {
		report, err := s.Run(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, &Report{}, report)

		counts, err := store.CountUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, 75, counts.Total)
	})
}

func TestDeterministic(t *testing.T) {
	ctx := context.Background()
	first, second := storagetest.Open(t), storagetest.Open(t)

	f, err := Parse("small", []byte(smallFixture))
	require.NoError(t, err)

	_, err = New(first, nil).Run(ctx, f)
	require.NoError(t, err)
	_, err = New(second, nil).Run(ctx, f)
	require.NoError(t, err)

	for _, name := range []string{"pilot_founder_1", "pilot_founder_2", "pilot_founder_3"} {
		a, err := first.GetUserByUsername(ctx, name)
		require.NoError(t, err)
		b, err := second.GetUserByUsername(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, a.Persona, b.Persona, name)
		assert.Equal(t, a.Province, b.Province, name)
		assert.Equal(t, a.InterestTags, b.InterestTags, name)
		assert.Equal(t, a.LinkedInProfile, b.LinkedInProfile, name)
	}
}

func TestFixtureFiles(t *testing.T) {
	store := storagetest.Open(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "pilot.yaml"), []byte(smallFixture), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	paths, err := Glob(filepath.Join(dir, "**", "*.yaml"))
	require.NoError(t, err)
	require.Len(t, paths, 1)

	fixtures, err := LoadAll(ctx, paths)
	require.NoError(t, err)
	require.Len(t, fixtures, 1)
	assert.Equal(t, paths[0], fixtures[0].Name)

	report, err := New(store, nil).Run(ctx, fixtures...)
	require.NoError(t, err)
	assert.Equal(t, &Report{Founders: 3, Experts: 2, Syndicates: 2, Offers: 2}, report)

	founder, err := store.GetUserByUsername(ctx, "pilot_founder_2")
	require.NoError(t, err)
	assert.Equal(t, 5, founder.KarmaScore)
	assert.True(t, auth.CheckPassword(founder.PasswordHash, "letmein99"))

	expert, err := store.GetUserByUsername(ctx, "pilot_expert_1")
	require.NoError(t, err)
	profile, err := store.GetExpertByUser(ctx, expert.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(profile.HourlyRate))
	assert.True(t, profile.IsVetted)

	exists, err := store.SyndicateTitleExists(ctx, "Pilot Fund 2")
	require.NoError(t, err)
	assert.True(t, exists)

	offers, err := store.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "Pilot Cloud", offers[0].CompanyName)

	report, err = New(store, nil).Run(ctx, fixtures...)
	require.NoError(t, err)
	assert.Equal(t, &Report{}, report)
}

func TestSyndicatesWithoutFounders(t *testing.T) {
	store := storagetest.Open(t)

	f, err := Parse("no-founders", []byte(`
syndicates:
  count: 1
  titles: ["Lonely Fund"]
  descriptions: ["Nobody leads this."]
  funding_goal: [100, 100]
  funded_share: [0, 0]
`))
	require.NoError(t, err)

	report, err := New(store, nil).Run(context.Background(), f)
	require.NoError(t, err)
	assert.Zero(t, report.Syndicates)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "username without placeholder",
			yaml:    "founders: {count: 1, username: solo, email: 's%d@x.test', bios: [hi]}",
			wantErr: "founders.username must contain exactly one %d",
		},
		{
			name:    "no bios",
			yaml:    "founders: {count: 1, username: 'f%d', email: 'f%d@x.test'}",
			wantErr: "founders.bios must not be empty",
		},
		{
			name:    "reversed range",
			yaml:    "founders: {count: 1, username: 'f%d', email: 'f%d@x.test', karma: [9, 1], bios: [hi]}",
			wantErr: "range must be [min, max]",
		},
		{
			name:    "vetted share",
			yaml:    "experts: {count: 1, username: 'e%d', email: 'e%d@x.test', bios: [hi], specializations: [Tax], vetted_share: 2}",
			wantErr: "experts.vetted_share must be between 0 and 1",
		},
		{
			name:    "offer discount",
			yaml:    "offers: [{company: Acme, discount_percent: 120, points_required: 10}]",
			wantErr: "offers[0].discount_percent must be between 0 and 100",
		},
		{
			name:    "offer points",
			yaml:    "offers: [{company: Acme, discount_percent: 10}]",
			wantErr: "offers[0].points_required must be positive",
		},
		{
			name:    "syndicate goal",
			yaml:    "syndicates: {count: 1, titles: [A], descriptions: [d]}",
			wantErr: "syndicates.funding_goal must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.name, []byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGlobInvalidPattern(t *testing.T) {
	_, err := Glob("fixtures/[")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadAll(context.Background(), []string{filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}
