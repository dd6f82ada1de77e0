package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Veraticus/spice-import/internal/common"
)

// Factory resolves providers for a preference from the configured set, filtering by live
// availability.
type Factory struct {
	logger    *slog.Logger
	providers []Provider
}

// NewFactory creates a factory over providers. Registration order breaks ties.
func NewFactory(logger *slog.Logger, providers ...Provider) *Factory {
	f := &Factory{logger: common.LoggerOrDefault(logger)}
	for _, p := range providers {
		if p != nil {
			f.providers = append(f.providers, p)
		}
	}
	return f
}

// Providers returns every configured provider, available or not.
func (f *Factory) Providers() []Provider {
	return append([]Provider(nil), f.providers...)
}

// GetAvailableProviders returns the configured providers that can serve a request now.
func (f *Factory) GetAvailableProviders(ctx context.Context) []Provider {
	var available []Provider
	for _, p := range f.providers {
		if p.IsAvailable(ctx) {
			available = append(available, p)
		}
	}
	return available
}

// HasAnyProvider reports whether at least one provider is available.
func (f *Factory) HasAnyProvider(ctx context.Context) bool {
	for _, p := range f.providers {
		if p.IsAvailable(ctx) {
			return true
		}
	}
	return false
}

// GetProvider returns the best available provider for pref.
// LocalOnly never resolves to a cloud provider.
func (f *Factory) GetProvider(ctx context.Context, pref Preference) (Provider, error) {
	chain, err := f.GetProvidersWithFallback(ctx, pref)
	if err != nil {
		return nil, err
	}
	return chain[0], nil
}

// GetProvidersWithFallback returns the available providers for pref, primary first, followed
// by every other available provider as fallbacks.
func (f *Factory) GetProvidersWithFallback(ctx context.Context, pref Preference) ([]Provider, error) {
	available := f.GetAvailableProviders(ctx)

	if pref == LocalOnly {
		var local []Provider
		for _, p := range available {
			if p.IsLocal() {
				local = append(local, p)
			}
		}
		if len(local) == 0 {
			return nil, &ProviderUnavailableError{Provider: "on-device", Reason: "no on-device provider available", Err: ErrNoProvider}
		}
		return local, nil
	}

	if len(available) == 0 {
		return nil, &ProviderUnavailableError{Provider: "any", Reason: fmt.Sprintf("no provider available for %s", pref), Err: ErrNoProvider}
	}

	ordered := orderFor(pref, available)
	f.logger.Debug("resolved providers", "preference", pref.String(), "primary", ordered[0].Name(), "count", len(ordered))
	return ordered, nil
}

// orderFor ranks providers for a preference. sort.SliceStable keeps registration order for ties.
func orderFor(pref Preference, providers []Provider) []Provider {
	out := append([]Provider(nil), providers...)

	classRank := func(p Provider, classes ...ModelClass) int {
		for i, c := range classes {
			if p.Profile().Class == c {
				return i
			}
		}
		return len(classes)
	}

	var less func(a, b Provider) bool
	switch pref {
	case FastCheap:
		less = func(a, b Provider) bool {
			ra, rb := classRank(a, ClassMini, ClassHaiku), classRank(b, ClassMini, ClassHaiku)
			if ra != rb {
				return ra < rb
			}
			return cheaperCloudFirst(a, b)
		}
	case BestQuality:
		less = func(a, b Provider) bool {
			ra, rb := classRank(a, ClassSonnet), classRank(b, ClassSonnet)
			if ra != rb {
				return ra < rb
			}
			return a.Profile().CostTier > b.Profile().CostTier
		}
	case StructuredOutput:
		less = func(a, b Provider) bool {
			sa, sb := a.Profile().StructuredOutput, b.Profile().StructuredOutput
			if sa != sb {
				return sa > sb
			}
			return a.Profile().CostTier < b.Profile().CostTier
		}
	default:
		less = func(a, b Provider) bool {
			if a.IsLocal() != b.IsLocal() {
				return a.IsLocal()
			}
			return a.Profile().CostTier < b.Profile().CostTier
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// cheaperCloudFirst orders cloud providers before local ones, then by cost.
func cheaperCloudFirst(a, b Provider) bool {
	if a.IsLocal() != b.IsLocal() {
		return !a.IsLocal()
	}
	return a.Profile().CostTier < b.Profile().CostTier
}
