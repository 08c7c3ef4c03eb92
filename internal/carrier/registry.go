package carrier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
)

type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger, adapters ...Adapter) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{adapters: map[string]Adapter{}, log: log.Named("carriers")}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := strings.ToLower(a.Code())
	if _, ok := r.adapters[code]; !ok {
		r.order = append(r.order, code)
	}
	r.adapters[code] = a
}

func (r *Registry) Get(code string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(code)]
	if !ok {
		return nil, shipments.Invalid("carrier", fmt.Sprintf("unknown carrier %q", code))
	}
	return a, nil
}

// Default is the first registered carrier.
func (r *Registry) Default() (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil, fmt.Errorf("no carrier registered")
	}
	return r.adapters[r.order[0]], nil
}

func (r *Registry) all() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, r.adapters[c])
	}
	return out
}

// Shop asks every carrier for rates concurrently. A carrier that fails is
// skipped as long as at least one other carrier answered; options come back
// cheapest first.
func (r *Registry) Shop(ctx context.Context, req shipments.ShipmentRequest) ([]shipments.RateQuoteOption, error) {
	adapters := r.all()
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no carrier registered")
	}

	results := make([][]shipments.RateQuoteOption, len(adapters))
	errs := make([]error, len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		g.Go(func() error {
			opts, err := a.GetRates(gctx, req.Shipper, req.Recipient, req.Packages, req.ServiceType)
			if err != nil {
				// satu carrier gagal tidak membatalkan carrier lain
				errs[i] = err
				r.log.Warn("rate request failed", zap.String("carrier", a.Code()), zap.Error(err))
				return nil
			}
			results[i] = opts
			return nil
		})
	}
	_ = g.Wait()

	var out []shipments.RateQuoteOption
	for _, opts := range results {
		out = append(out, opts...)
	}
	if len(out) == 0 {
		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BaseRate < out[j].BaseRate })
	return out, nil
}
