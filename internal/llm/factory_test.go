package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(providers []Provider) []string {
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = p.Name()
	}
	return out
}

func TestFactory_GetProvider(t *testing.T) {
	sonnet := NewMockProvider("sonnet", ClassSonnet, 4)
	haiku := NewMockProvider("haiku", ClassHaiku, 2)
	mini := NewMockProvider("mini", ClassMini, 1)
	flash := NewMockProvider("flash", ClassFlash, 1)
	flash.ProfileV.StructuredOutput = 3
	local := NewMockProvider("local", ClassLocal, 0)

	f := NewFactory(nil, sonnet, haiku, mini, flash, local)
	ctx := context.Background()

	tests := []struct {
		name      string
		wantChain []string
		pref      Preference
	}{
		{name: "fast cheap prefers mini then haiku", pref: FastCheap, wantChain: []string{"mini", "haiku", "flash", "sonnet", "local"}},
		{name: "best quality prefers sonnet", pref: BestQuality, wantChain: []string{"sonnet", "haiku", "mini", "flash", "local"}},
		{name: "structured output prefers highest score", pref: StructuredOutput, wantChain: []string{"flash", "local", "mini", "haiku", "sonnet"}},
		{name: "local only", pref: LocalOnly, wantChain: []string{"local"}},
		{name: "cheapest starts on device", pref: Cheapest, wantChain: []string{"local", "mini", "flash", "haiku", "sonnet"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := f.GetProvidersWithFallback(ctx, tt.pref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantChain, names(chain))

			p, err := f.GetProvider(ctx, tt.pref)
			require.NoError(t, err)
			assert.Equal(t, tt.wantChain[0], p.Name())
		})
	}
}

func TestFactory_FallsBackWhenPreferredIsDown(t *testing.T) {
	mini := NewMockProvider("mini", ClassMini, 1)
	mini.Down = true
	haiku := NewMockProvider("haiku", ClassHaiku, 2)
	sonnet := NewMockProvider("sonnet", ClassSonnet, 4)

	f := NewFactory(nil, mini, sonnet, haiku)
	p, err := f.GetProvider(context.Background(), FastCheap)
	require.NoError(t, err)
	assert.Equal(t, "haiku", p.Name())

	p, err = f.GetProvider(context.Background(), BestQuality)
	require.NoError(t, err)
	assert.Equal(t, "sonnet", p.Name())
}

func TestFactory_LocalOnlyNeverUsesCloud(t *testing.T) {
	f := NewFactory(nil, NewMockProvider("mini", ClassMini, 1), NewMockProvider("sonnet", ClassSonnet, 4))

	p, err := f.GetProvider(context.Background(), LocalOnly)
	assert.Nil(t, p)
	var unavailable *ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "on-device", unavailable.Provider)
	assert.True(t, errors.Is(err, ErrNoProvider))

	local := NewMockProvider("local", ClassLocal, 0)
	local.Down = true
	f = NewFactory(nil, NewMockProvider("mini", ClassMini, 1), local)
	_, err = f.GetProvider(context.Background(), LocalOnly)
	require.ErrorAs(t, err, &unavailable)
}

func TestFactory_Availability(t *testing.T) {
	up := NewMockProvider("up", ClassMini, 1)
	down := NewMockProvider("down", ClassHaiku, 2)
	down.Down = true

	f := NewFactory(nil, up, down, nil)
	assert.Len(t, f.Providers(), 2)
	assert.True(t, f.HasAnyProvider(context.Background()))
	assert.Equal(t, []string{"up"}, names(f.GetAvailableProviders(context.Background())))

	up.Down = true
	assert.False(t, f.HasAnyProvider(context.Background()))
	_, err := f.GetProvider(context.Background(), Cheapest)
	require.ErrorIs(t, err, ErrNoProvider)

	empty := NewFactory(nil)
	assert.False(t, empty.HasAnyProvider(context.Background()))
}

func TestParsePreference(t *testing.T) {
	for _, p := range Preferences() {
		got, err := ParsePreference(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	got, err := ParsePreference("local-only")
	require.NoError(t, err)
	assert.Equal(t, LocalOnly, got)

	_, err = ParsePreference("fastest")
	assert.Error(t, err)
}
