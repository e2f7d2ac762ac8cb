package ml

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crlsmrls/logsentry/internal/alert"
	"github.com/crlsmrls/logsentry/internal/event"
)

// maxModelPoolSize bounds the hot-swap pool, matching the original's
// fixed-size array of model slots.
const maxModelPoolSize = 4

// Model scores a feature vector; raw output follows the scikit-learn
// IsolationForest convention (higher = more normal). A real binding
// wraps an ONNX Runtime session; this package ships only the interface
// and a deterministic stub standing in for that binding.
type Model struct {
	Name  string
	Score func(features [event.FeatureVectorSize]float64) float64
}

// StubModel returns a deterministic Model computing a raw anomaly
// score from the L2 norm of the (already tanh-squashed) feature
// vector, standing in for a trained IsolationForest until a real
// runtime binding is wired.
func StubModel(name string) Model {
	return Model{
		Name: name,
		Score: func(features [event.FeatureVectorSize]float64) float64 {
			sumSq := 0.0
			for _, x := range features {
				sumSq += x * x
			}
			// Normal (near-zero, well-centered) vectors score close to 1;
			// spread-out vectors score lower, matching the "higher = more
			// normal" IsolationForest convention.
			return 1.0 / (1.0 + sumSq)
		},
	}
}

type modelSlot struct {
	model        Model
	lastUsedMs   atomic.Int64
	referenceCnt atomic.Uint64
}

// ModelManagerConfig tunes the Tier 3 score threshold.
type ModelManagerConfig struct {
	// ScoreThreshold is the raw model-score cutoff (scikit-learn
	// IsolationForest convention): an alert fires when
	// 0.5 - raw > ScoreThreshold.
	ScoreThreshold float64
}

// ModelManager holds a small hot-swappable pool of scoring models and
// the feature manager that builds their input vectors. It implements
// rules.Scorer.
type ModelManager struct {
	cfg      ModelManagerConfig
	features *FeatureManager

	mu          sync.RWMutex
	pool        [maxModelPoolSize]modelSlot
	activeIndex int
	poolSize    int

	disabled atomic.Bool
}

// NewModelManager constructs a manager around an initial model and its
// feature builder. Call LoadModel to populate additional hot-swap
// slots.
func NewModelManager(cfg ModelManagerConfig, features *FeatureManager, initial Model) *ModelManager {
	m := &ModelManager{cfg: cfg, features: features}
	m.pool[0].model = initial
	m.pool[0].lastUsedMs.Store(time.Now().UnixMilli())
	m.poolSize = 1
	return m
}

// LoadModel installs model into a free slot without disturbing the
// currently active one; returns an error if the pool is full.
func (m *ModelManager) LoadModel(model Model) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poolSize >= maxModelPoolSize {
		return fmt.Errorf("ml: model pool full (max %d slots)", maxModelPoolSize)
	}
	m.pool[m.poolSize].model = model
	m.pool[m.poolSize].lastUsedMs.Store(time.Now().UnixMilli())
	m.poolSize++
	return nil
}

// Swap atomically switches the active slot to index and clears the
// feature cache, matching the original's hot-swap-clears-cache
// behavior.
func (m *ModelManager) Swap(index int) error {
	m.mu.Lock()
	if index < 0 || index >= m.poolSize {
		m.mu.Unlock()
		return fmt.Errorf("ml: slot %d out of range (pool size %d)", index, m.poolSize)
	}
	m.activeIndex = index
	m.mu.Unlock()

	m.features.HandleMemoryPressure() // reuse the cache-clear path
	return nil
}

// Disable turns Tier 3 off (e.g. after a model load failure); Score
// then always returns ok=false.
func (m *ModelManager) Disable() { m.disabled.Store(true) }

// Score implements rules.Scorer: builds the feature vector, runs the
// active model, and emits an alert when the negated score exceeds the
// configured threshold.
func (m *ModelManager) Score(ev *event.AnalyzedEvent) (*alert.Alert, bool) {
	if m.disabled.Load() {
		return nil, false
	}

	m.mu.RLock()
	slot := &m.pool[m.activeIndex]
	model := slot.model
	m.mu.RUnlock()

	slot.referenceCnt.Add(1)
	slot.lastUsedMs.Store(time.Now().UnixMilli())

	features := m.features.Build(ev)
	raw := model.Score(features)
	normalized := 0.5 - raw

	if normalized <= m.cfg.ScoreThreshold {
		return nil, false
	}

	return &alert.Alert{
		Event:               ev,
		TimestampMs:         ev.Record.TimestampMs,
		SourceIP:            ev.Record.ClientIP,
		Reason:              "High ML Anomaly Score",
		Tier:                alert.TierML,
		Action:              alert.ActionForScore(normalized * 100),
		Score:                clamp01(normalized),
		OffendingKey:        "ml_score",
		LogLine:             ev.Record.LineNumber,
		FeatureContribution: "", // per-feature explanation branch not implemented
	}, true
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
