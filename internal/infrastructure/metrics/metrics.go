package metrics

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/units"
)

const namespace = "staking"

// Collector turns committed staking events into Prometheus series. Amounts are
// exported in human token units.
type Collector struct {
	decimals int32

	stakes      prometheus.Counter
	withdrawals *prometheus.CounterVec
	penalties   prometheus.Counter
	tvl         prometheus.Gauge
	custody     prometheus.Gauge
	shortfall   prometheus.Gauge
	adminOps    *prometheus.CounterVec

	mu     sync.Mutex
	locked *uint256.Int
}

func NewCollector(decimals int32) *Collector {
	return &Collector{
		decimals: decimals,
		stakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stakes_total",
			Help:      "Number of accepted stake deposits.",
		}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Number of withdrawals, split by whether the lock period had elapsed.",
		}, []string{"early"}),
		penalties: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "penalties_collected",
			Help:      "Early withdrawal penalties paid to the owner, in tokens.",
		}),
		tvl: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_value_locked",
			Help:      "Sum of all staked balances, in tokens.",
		}),
		custody: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "custody_balance",
			Help:      "Token balance of the custody account at the last solvency check.",
		}),
		shortfall: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "custody_shortfall",
			Help:      "Staked balances not backed by custody tokens, in tokens.",
		}),
		adminOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_updates_total",
			Help:      "Owner configuration changes by kind.",
		}, []string{"type"}),
		locked: new(uint256.Int),
	}
}

// Register adds every series to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.stakes, c.withdrawals, c.penalties, c.tvl, c.custody, c.shortfall, c.adminOps} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// SetTotalValueLocked seeds the gauge, normally from PoolStats at startup.
func (c *Collector) SetTotalValueLocked(total *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = total.Clone()
	c.tvl.Set(units.Float(c.locked, c.decimals))
}

// SetCustody records the outcome of a solvency check.
func (c *Collector) SetCustody(balance, shortfall *uint256.Int) {
	c.custody.Set(units.Float(balance, c.decimals))
	c.shortfall.Set(units.Float(shortfall, c.decimals))
}

// Observe is the broker subscription callback.
func (c *Collector) Observe(e domain.Event) {
	switch evt := e.(type) {
	case *domain.StakedEvent:
		c.stakes.Inc()
		// Compounded rewards are minted into the position, so TVL grows by both.
		c.addLocked(evt.Amount, evt.Compounded)
	case *domain.WithdrawnEvent:
		c.withdrawals.WithLabelValues(boolLabel(evt.Early)).Inc()
		if !evt.Penalty.IsZero() {
			c.penalties.Add(units.Float(evt.Penalty, c.decimals))
		}
		c.subLocked(evt.Amount)
	default:
		c.adminOps.WithLabelValues(string(e.Type())).Inc()
	}
}

func (c *Collector) addLocked(amounts ...*uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range amounts {
		if a != nil {
			c.locked.Add(c.locked, a)
		}
	}
	c.tvl.Set(units.Float(c.locked, c.decimals))
}

func (c *Collector) subLocked(amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount.Gt(c.locked) {
		c.locked.Clear()
	} else {
		c.locked.Sub(c.locked, amount)
	}
	c.tvl.Set(units.Float(c.locked, c.decimals))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
