package detectors

import (
	"fmt"
	"sort"

	"UniAD/internal/domain/models"
	"UniAD/internal/domain/service"
)

// Registry resolves strategies by kind. It is read-only after construction.
type Registry struct {
	byKind map[models.StrategyKind]service.Strategy
}

// NewRegistry indexes strategies by their kind; a later strategy replaces an
// earlier one of the same kind.
func NewRegistry(strategies ...service.Strategy) *Registry {
	r := &Registry{byKind: make(map[models.StrategyKind]service.Strategy, len(strategies))}
	for _, s := range strategies {
		r.byKind[s.Kind()] = s
	}
	return r
}

// NewLocalRegistry serves every kind with the in-process kernels.
func NewLocalRegistry() *Registry {
	return NewRegistry(NewPersist(), NewThreshold(), NewLevelShift(), NewVolatilityShift())
}

// NewRemoteRegistry forwards every windowed kind to a remote kernel.
// Threshold stays local since it has no fitted state.
func NewRemoteRegistry(kernel *KernelClient) *Registry {
	return NewRegistry(
		NewThreshold(),
		NewRemote(models.KindPersist, kernel),
		NewRemote(models.KindLevelShift, kernel),
		NewRemote(models.KindVolatilityShift, kernel),
	)
}

func (r *Registry) Get(kind models.StrategyKind) (service.Strategy, error) {
	s, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", models.ErrInvalidInput, kind)
	}
	return s, nil
}

// Kinds lists the registered kinds in name order.
func (r *Registry) Kinds() []models.StrategyKind {
	out := make([]models.StrategyKind, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ service.StrategyResolver = (*Registry)(nil)
