package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Rohianon/ptracker/services/portfolio-service/internal/types"
)

// Memory is an in-process Store. It applies the same set semantics as the
// Postgres store and counts every successful write, which tests use to
// assert that an operation did not persist anything.
type Memory struct {
	mu         sync.RWMutex
	assets     map[string]types.Asset
	lots       map[string]types.Lot
	portfolios map[string]types.Portfolio
	writes     int
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		assets:     make(map[string]types.Asset),
		lots:       make(map[string]types.Lot),
		portfolios: make(map[string]types.Portfolio),
	}
}

// Writes returns the number of successful mutations so far.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) CreateAsset(_ context.Context, a *types.Asset) (*types.Asset, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.assetBySymbol(a.Symbol); ok {
		return &existing, false, nil
	}
	m.assets[a.ID] = *a
	m.writes++
	stored := *a
	return &stored, true, nil
}

func (m *Memory) GetAsset(_ context.Context, id string) (*types.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) FindAssetBySymbol(_ context.Context, symbol string) (*types.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assetBySymbol(symbol)
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) assetBySymbol(symbol string) (types.Asset, bool) {
	for _, a := range m.assets {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return types.Asset{}, false
}

func (m *Memory) ListAssetsByIDs(_ context.Context, ids []string) ([]types.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool, len(ids))
	var assets []types.Asset
	for _, id := range ids {
		a, ok := m.assets[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Symbol < assets[j].Symbol })
	return assets, nil
}

func (m *Memory) CreateLot(_ context.Context, l *types.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lots[l.ID]; ok {
		return ErrDuplicate
	}
	m.lots[l.ID] = *l
	m.writes++
	return nil
}

func (m *Memory) GetLot(_ context.Context, id string) (*types.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.lots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (m *Memory) UpdateLot(_ context.Context, l *types.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.lots[l.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Quantity = l.Quantity
	stored.AcquiredDate = l.AcquiredDate
	stored.UnitPrice = l.UnitPrice
	stored.CostBasis = l.CostBasis
	stored.UpdatedAt = l.UpdatedAt
	m.lots[l.ID] = stored
	m.writes++
	return nil
}

func (m *Memory) DeleteLot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lots[id]; !ok {
		return ErrNotFound
	}
	delete(m.lots, id)
	m.writes++
	return nil
}

func (m *Memory) ListLots(_ context.Context, f LotFilter) ([]types.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lots []types.Lot
	for _, l := range m.lots {
		if f.UserID != "" && l.UserID != f.UserID {
			continue
		}
		if f.PortfolioID != "" && l.PortfolioID != f.PortfolioID {
			continue
		}
		if f.AssetID != "" && l.AssetID != f.AssetID {
			continue
		}
		lots = append(lots, l)
	}
	sort.Slice(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if a.AssetSymbol != b.AssetSymbol {
			return a.AssetSymbol < b.AssetSymbol
		}
		if !a.AcquiredDate.Equal(b.AcquiredDate) {
			return a.AcquiredDate.After(b.AcquiredDate)
		}
		return a.ID < b.ID
	})
	return lots, nil
}

func (m *Memory) CountLotsByAsset(_ context.Context, assetID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, l := range m.lots {
		if l.AssetID == assetID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreatePortfolio(_ context.Context, p *types.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.portfolios {
		if existing.UserID == p.UserID && existing.Name == p.Name {
			return ErrDuplicate
		}
	}
	m.portfolios[p.ID] = clonePortfolio(*p)
	m.writes++
	return nil
}

func (m *Memory) GetPortfolio(_ context.Context, id string) (*types.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.portfolios[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clonePortfolio(p)
	return &c, nil
}

func (m *Memory) FindPortfolioByName(_ context.Context, userID, name string) (*types.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.portfolios {
		if p.UserID == userID && p.Name == name {
			c := clonePortfolio(p)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListPortfolios(_ context.Context, userID string) ([]types.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Portfolio
	for _, p := range m.portfolios {
		if p.UserID == userID {
			out = append(out, clonePortfolio(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdatePortfolioDetails(_ context.Context, id, name, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.portfolios[id]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.portfolios {
		if other.ID != id && other.UserID == p.UserID && other.Name == name {
			return ErrDuplicate
		}
	}
	p.Name = name
	p.Description = description
	p.UpdatedAt = time.Now().UTC()
	m.portfolios[id] = p
	m.writes++
	return nil
}

func (m *Memory) DeletePortfolio(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[id]; !ok {
		return ErrNotFound
	}
	delete(m.portfolios, id)
	m.writes++
	return nil
}

func (m *Memory) AddPortfolioAsset(_ context.Context, portfolioID, assetID string) (bool, error) {
	return m.editMembers(portfolioID, func(p *types.Portfolio) bool {
		if p.HasAsset(assetID) {
			return false
		}
		p.AssetIDs = append(p.AssetIDs, assetID)
		return true
	})
}

func (m *Memory) RemovePortfolioAsset(_ context.Context, portfolioID, assetID string) error {
	_, err := m.editMembers(portfolioID, func(p *types.Portfolio) bool {
		p.AssetIDs = without(p.AssetIDs, assetID)
		return true
	})
	return err
}

func (m *Memory) AddPortfolioLot(_ context.Context, portfolioID, lotID string) (bool, error) {
	return m.editMembers(portfolioID, func(p *types.Portfolio) bool {
		if p.HasLot(lotID) {
			return false
		}
		p.LotIDs = append(p.LotIDs, lotID)
		return true
	})
}

func (m *Memory) RemovePortfolioLot(_ context.Context, portfolioID, lotID string) error {
	_, err := m.editMembers(portfolioID, func(p *types.Portfolio) bool {
		p.LotIDs = without(p.LotIDs, lotID)
		return true
	})
	return err
}

// editMembers applies edit under the write lock; edit reports whether it changed anything.
func (m *Memory) editMembers(portfolioID string, edit func(p *types.Portfolio) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.portfolios[portfolioID]
	if !ok {
		return false, ErrNotFound
	}
	if !edit(&p) {
		return false, nil
	}
	p.UpdatedAt = time.Now().UTC()
	m.portfolios[portfolioID] = p
	m.writes++
	return true, nil
}

func (m *Memory) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for _, p := range m.portfolios {
		seen[p.UserID] = true
	}
	for _, l := range m.lots {
		seen[l.UserID] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func clonePortfolio(p types.Portfolio) types.Portfolio {
	p.AssetIDs = append([]string{}, p.AssetIDs...)
	p.LotIDs = append([]string{}, p.LotIDs...)
	return p
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
