package symbols

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"main/internal/errors"
	"main/internal/wire"
	"main/pkg/exception"
)

// Requester is the request/response surface of the session layer.
type Requester interface {
	Request(ctx context.Context, reqType uint32, payload []byte, wantType uint32) ([]byte, error)
}

// Instrument is one catalog entry. Immutable after the catalog loads.
type Instrument struct {
	ID        int64
	Name      string
	Digits    int32
	Synthetic bool
}

// Constraints are the per-instrument trading limits, fetched lazily and
// cached for the process lifetime.
type Constraints struct {
	Digits        int32
	MinVolume     int64
	MaxVolume     int64
	StepVolume    int64
	ContractSize  int64
	TickValue     float64
	InitialMargin float64
}

// TickSize is the smallest price increment.
func (c Constraints) TickSize() float64 {
	size := 1.0
	for i := int32(0); i < c.Digits; i++ {
		size /= 10
	}
	return size
}

// Directory resolves free-form asset names to the venue's numeric ids and
// owns the instrument records; other components only read through it.
type Directory struct {
	req       Requester
	accountID int64

	mu     sync.RWMutex
	loaded bool
	byName map[string]Instrument
	byID   map[int64]Instrument
	order  []string

	consMu sync.RWMutex
	cons   map[int64]Constraints
	flight singleflight.Group
}

// New creates an empty directory; the catalog loads on first use.
func New(req Requester, accountID int64) *Directory {
	return &Directory{
		req:       req,
		accountID: accountID,
		byName:    make(map[string]Instrument),
		byID:      make(map[int64]Instrument),
		cons:      make(map[int64]Constraints),
	}
}

// Resolve maps a free-form asset name to an instrument, trying
// progressively looser strategies before failing with ErrUnknownSymbol.
func (d *Directory) Resolve(ctx context.Context, name string) (Instrument, error) {
	if err := d.ensureLoaded(ctx); err != nil {
		return Instrument{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	// Exact.
	if inst, ok := d.byName[name]; ok {
		return inst, nil
	}

	// Case-insensitive.
	for _, catalog := range d.order {
		if strings.EqualFold(catalog, name) {
			return d.byName[catalog], nil
		}
	}

	// String variants: separators and parentheses dropped.
	for _, variant := range nameVariants(name) {
		for _, catalog := range d.order {
			if strings.EqualFold(catalog, variant) {
				return d.byName[catalog], nil
			}
		}
	}

	// Normalized key: separators removed, synthetic suffixes stripped.
	key := normalizeKey(name)
	if key != "" {
		for _, catalog := range d.order {
			if normalizeKey(catalog) == key {
				return d.byName[catalog], nil
			}
		}
	}

	// Substring.
	if key != "" {
		for _, catalog := range d.order {
			catalogKey := normalizeKey(catalog)
			if catalogKey == "" {
				continue
			}
			if strings.Contains(catalogKey, key) || strings.Contains(key, catalogKey) {
				return d.byName[catalog], nil
			}
		}
	}

	// Edit distance, only for names long enough to make distance 3
	// meaningful.
	if len(name) > 4 {
		bestDist := maxEditDistance + 1
		bestName := ""
		for _, catalog := range d.order {
			dist := editDistance(strings.ToUpper(name), strings.ToUpper(catalog))
			if dist < bestDist {
				bestDist = dist
				bestName = catalog
			}
		}
		if bestDist <= maxEditDistance {
			return d.byName[bestName], nil
		}
	}

	return Instrument{}, errors.Wrap(exception.ErrUnknownSymbol, name)
}

// ByID returns the instrument for a venue id. Used to cross-check fills
// against the originally requested asset.
func (d *Directory) ByID(ctx context.Context, id int64) (Instrument, error) {
	if err := d.ensureLoaded(ctx); err != nil {
		return Instrument{}, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	inst, ok := d.byID[id]
	if !ok {
		return Instrument{}, errors.Wrap(exception.ErrUnknownSymbolID, strconv.FormatInt(id, 10))
	}
	return inst, nil
}

// Constraints fetches the trading limits for an instrument, once per id
// per process. Concurrent callers for the same id share one network round
// trip.
func (d *Directory) Constraints(ctx context.Context, id int64) (Constraints, error) {
	d.consMu.RLock()
	cached, ok := d.cons[id]
	d.consMu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := d.flight.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		d.consMu.RLock()
		cached, ok := d.cons[id]
		d.consMu.RUnlock()
		if ok {
			return cached, nil
		}

		req := wire.SymbolByIDReq{AccountID: d.accountID, SymbolID: id}
		payload, err := d.req.Request(ctx, wire.PTSymbolByIDReq, req.Encode(nil), wire.PTSymbolByIDRes)
		if err != nil {
			return Constraints{}, errors.Wrap(err, "fetch symbol constraints")
		}
		res, err := wire.DecodeSymbolByIDRes(payload)
		if err != nil {
			return Constraints{}, errors.Wrap(err, "decode symbol constraints")
		}
		if res.Symbol.ID != id {
			return Constraints{}, exception.ErrConstraintMissing
		}

		cons := Constraints{
			Digits:        res.Symbol.Digits,
			MinVolume:     res.Symbol.MinVolume,
			MaxVolume:     res.Symbol.MaxVolume,
			StepVolume:    res.Symbol.StepVolume,
			ContractSize:  res.Symbol.ContractSize,
			TickValue:     res.Symbol.TickValue,
			InitialMargin: res.Symbol.InitialMargin,
		}
		d.consMu.Lock()
		d.cons[id] = cons
		d.consMu.Unlock()
		return cons, nil
	})
	if err != nil {
		return Constraints{}, err
	}
	return v.(Constraints), nil
}

func (d *Directory) ensureLoaded(ctx context.Context) error {
	d.mu.RLock()
	loaded := d.loaded
	d.mu.RUnlock()
	if loaded {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return nil
	}

	req := wire.SymbolsListReq{AccountID: d.accountID}
	payload, err := d.req.Request(ctx, wire.PTSymbolsListReq, req.Encode(nil), wire.PTSymbolsListRes)
	if err != nil {
		return errors.Wrap(err, "fetch symbol list")
	}
	res, err := wire.DecodeSymbolsListRes(payload)
	if err != nil {
		return errors.Wrap(err, "decode symbol list")
	}
	if len(res.Symbols) == 0 {
		return exception.ErrSymbolListEmpty
	}

	for _, sym := range res.Symbols {
		inst := Instrument{
			ID:        sym.ID,
			Name:      sym.Name,
			Digits:    sym.Digits,
			Synthetic: isSyntheticName(sym.Name),
		}
		d.byName[inst.Name] = inst
		d.byID[inst.ID] = inst
		d.order = append(d.order, inst.Name)
	}
	d.loaded = true
	return nil
}
