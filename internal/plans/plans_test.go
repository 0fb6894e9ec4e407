package plans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		name    string
		plan    string
		cycle   string
		want    int64
		wantErr error
	}{
		{name: "free monthly", plan: Free, cycle: CycleMonthly, want: 0},
		{name: "student premium monthly", plan: StudentPremium, cycle: CycleMonthly, want: 499},
		{name: "parent pro yearly", plan: StudentParentPremiumPro, cycle: CycleYearly, want: 9990},
		{name: "institutions yearly", plan: EducationalInstitutionsPremium, cycle: CycleYearly, want: 199000},
		{name: "unknown plan", plan: "gold", cycle: CycleMonthly, wantErr: ErrUnknownPlan},
		{name: "unknown cycle", plan: StudentPremium, cycle: "weekly", wantErr: ErrUnknownCycle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Price(tt.plan, tt.cycle)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeaturesAndLimits(t *testing.T) {
	assert.True(t, Has(Free, FeatureBasicGames))
	assert.False(t, Has(Free, FeatureAllGames))
	assert.True(t, Has(StudentParentPremiumPro, FeatureParentDashboard))
	assert.False(t, Has(StudentPremium, FeatureParentDashboard))
	assert.True(t, Has(EducationalInstitutionsPremium, FeatureClassManagement))
	assert.False(t, Has("unknown", FeatureBasicGames))

	assert.Equal(t, 5, Limit(Free, LimitGamesPerDay))
	assert.Equal(t, 0, Limit(StudentPremium, LimitGamesPerDay))
	assert.Equal(t, 1, Limit(Free, LimitChildren))
	assert.Equal(t, 5, Limit(StudentParentPremiumPro, LimitChildren))
	assert.Equal(t, 500, Limit(EducationalInstitutionsPremium, LimitStudents))
	assert.Equal(t, 50, Limit(EducationalInstitutionsPremium, LimitClasses))

	assert.False(t, IsPaid(Free))
	assert.True(t, IsPaid(StudentPremium))
	assert.False(t, IsPaid("unknown"))
}

func TestAll_SortedByMonthlyPrice(t *testing.T) {
	all := All()
	require.Len(t, all, 4)
	assert.Equal(t, Free, all[0].Name)
	assert.Equal(t, EducationalInstitutionsPremium, all[3].Name)
}

func TestNextEndDate(t *testing.T) {
	base := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)

	monthly, err := NextEndDate(base, CycleMonthly)
	require.NoError(t, err)
	assert.Equal(t, base.AddDate(0, 1, 0), monthly)

	yearly, err := NextEndDate(base, CycleYearly)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC), yearly)

	_, err = NextEndDate(base, "daily")
	assert.ErrorIs(t, err, ErrUnknownCycle)
}

func TestRenewalBase(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	future := now.AddDate(0, 0, 10)
	assert.Equal(t, future, RenewalBase(now, future), "renewal extends from the current end when it is ahead")

	past := now.AddDate(0, 0, -10)
	assert.Equal(t, now, RenewalBase(now, past), "lapsed subscription renews from now")
}
