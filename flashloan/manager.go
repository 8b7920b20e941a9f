package flashloan

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
)

// Manager picks the cheapest provider for a loan.
type Manager struct {
	mu        sync.RWMutex
	providers []Provider
	metrics   *metrics.FlashLoanMetrics
	logger    *zap.Logger
}

// NewManager creates a manager without providers.
func NewManager(m *metrics.FlashLoanMetrics, logger *zap.Logger) *Manager {
	return &Manager{
		metrics: m,
		logger:  logger,
	}
}

// AddProvider adds a new flash loan provider
func (m *Manager) AddProvider(provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, provider)
}

// Provider returns the provider registered under name.
func (m *Manager) Provider(name string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Providers returns the registered providers in registration order.
func (m *Manager) Providers() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Provider(nil), m.providers...)
}

// Select returns the provider charging the lowest fee on amount and that fee.
// Ties go to the provider registered first.
func (m *Manager) Select(asset common.Address, amount *big.Int) (Provider, *big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.providers) == 0 {
		m.metrics.Errors.Inc()
		return nil, nil, fmt.Errorf("no flash loan providers available")
	}

	var (
		best    Provider
		bestFee *big.Int
	)
	for _, p := range m.providers {
		fee := p.Fee(amount)
		if bestFee == nil || fee.Cmp(bestFee) < 0 {
			best, bestFee = p, fee
		}
	}

	m.metrics.Selections.WithLabelValues(best.Name()).Inc()
	m.logger.Debug("Selected flash loan provider",
		zap.String("provider", best.Name()),
		zap.String("asset", asset.Hex()),
		zap.String("fee", bestFee.String()))
	return best, bestFee, nil
}
