package service

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turtacn/ubi/internal/domain/models"
	"github.com/turtacn/ubi/pkg/constants"
	"github.com/turtacn/ubi/pkg/errors"
)

// PricingTable owns the versioned band -> delta_pct configuration.
// Readers see an immutable snapshot; writers validate a full candidate and swap it in one step.
// PricingTable 管理版本化的定价表。
type PricingTable struct {
	current  atomic.Pointer[models.PricingConfig]
	mu       sync.Mutex // serialises writers
	defaults map[constants.Band]float64
	warnAt   float64
	writer   string
	now      func() time.Time
}

// PricingTableOption customises a PricingTable.
type PricingTableOption func(*PricingTable)

// WithWarnThreshold sets the |delta_pct| above which validation warns.
func WithWarnThreshold(v float64) PricingTableOption {
	return func(t *PricingTable) { t.warnAt = v }
}

// WithWriter names this instance in the versions and snapshots it writes, so that two
// replicas bumping the same version concurrently still produce distinct labels.
func WithWriter(id string) PricingTableOption {
	return func(t *PricingTable) { t.writer = id }
}

// WithClock overrides the time source used for last_updated.
func WithClock(now func() time.Time) PricingTableOption {
	return func(t *PricingTable) { t.now = now }
}

// NewPricingTable creates a table from the given adjustments and rules. Missing bands take
// their built-in default. The initial table must itself be valid.
func NewPricingTable(adjustments map[constants.Band]float64, rules models.PricingRules, opts ...PricingTableOption) (*PricingTable, error) {
	t := &PricingTable{
		defaults: constants.DefaultAdjustments(),
		warnAt:   constants.DefaultWarnAdjustment,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}

	merged := constants.DefaultAdjustments()
	for b, v := range adjustments {
		merged[b] = v
	}
	cfg := &models.PricingConfig{
		Adjustments: merged,
		Rules:       rules,
		Version:     constants.InitialPricingVersion,
		LastUpdated: t.now(),
	}
	if report := t.ValidateConfig(cfg); !report.IsValid {
		return nil, errors.ErrValidation(report.Errors)
	}
	t.current.Store(cfg)
	return t, nil
}

// NewDefaultPricingTable creates the built-in table.
func NewDefaultPricingTable() *PricingTable {
	t, err := NewPricingTable(nil, models.DefaultPricingRules())
	if err != nil {
		panic(err) // the built-in table is valid
	}
	return t
}

// Snapshot returns the current configuration. Callers must not mutate it.
func (t *PricingTable) Snapshot() *models.PricingConfig {
	return t.current.Load()
}

// Adjustment returns the raw delta_pct for band, 0 for an unknown band.
func (t *PricingTable) Adjustment(band constants.Band) float64 {
	return t.current.Load().Adjustments[band]
}

// Version returns the current table version.
func (t *PricingTable) Version() string {
	return t.current.Load().Version
}

// Validate validates the current table.
func (t *PricingTable) Validate() models.ValidationReport {
	return t.ValidateConfig(t.current.Load())
}

// ValidateConfig checks bounds and risk-order monotonicity of cfg.
// Out-of-bounds and inverted bands are errors; large adjustments are warnings.
func (t *PricingTable) ValidateConfig(cfg *models.PricingConfig) models.ValidationReport {
	report := models.ValidationReport{Warnings: []string{}, Errors: []string{}}
	rules := cfg.Rules

	if rules.MinPremium <= 0 || rules.MinPremium >= rules.MaxPremium {
		report.Errors = append(report.Errors, fmt.Sprintf("min_premium %.2f must be positive and below max_premium %.2f", rules.MinPremium, rules.MaxPremium))
	}
	if rules.MinAdjustment > 0 || rules.MaxAdjustment < 0 ||
		rules.MinAdjustment < -constants.DeltaPctHardLimit || rules.MaxAdjustment > constants.DeltaPctHardLimit {
		report.Errors = append(report.Errors, fmt.Sprintf("adjustment bounds [%.1f%%, %.1f%%] must contain 0 and lie within ±%.0f%%",
			rules.MinAdjustment*100, rules.MaxAdjustment*100, constants.DeltaPctHardLimit*100))
	}
	if rules.CooldownDays < 0 {
		report.Errors = append(report.Errors, "cooldown_days must not be negative")
	}

	for b := range cfg.Adjustments {
		if !b.Valid() {
			report.Errors = append(report.Errors, fmt.Sprintf("unknown band %q", b))
		}
	}

	for _, b := range constants.Bands {
		adj, ok := cfg.Adjustments[b]
		switch {
		case !ok:
			report.Errors = append(report.Errors, fmt.Sprintf("Band %s adjustment is missing", b))
			continue
		case math.IsNaN(adj) || math.IsInf(adj, 0):
			report.Errors = append(report.Errors, fmt.Sprintf("Band %s adjustment is not a finite number", b))
			continue
		}
		if adj < rules.MinAdjustment {
			report.Errors = append(report.Errors, fmt.Sprintf("Band %s adjustment %.1f%% below minimum %.1f%%", b, adj*100, rules.MinAdjustment*100))
		}
		if adj > rules.MaxAdjustment {
			report.Errors = append(report.Errors, fmt.Sprintf("Band %s adjustment %.1f%% above maximum %.1f%%", b, adj*100, rules.MaxAdjustment*100))
		}
		if math.Abs(adj) > t.warnAt {
			report.Warnings = append(report.Warnings, fmt.Sprintf("Band %s has extreme adjustment: %.1f%%", b, adj*100))
		}
	}

	for i := 0; i < len(constants.Bands)-1; i++ {
		lo, hi := constants.Bands[i], constants.Bands[i+1]
		a, okA := cfg.Adjustments[lo]
		b, okB := cfg.Adjustments[hi]
		if okA && okB && a > b {
			report.Errors = append(report.Errors, fmt.Sprintf("Band %s (%.1f%%) is priced above riskier band %s (%.1f%%)", lo, a*100, hi, b*100))
		}
	}

	if lo, hi, ok := spread(cfg.Adjustments); ok && hi-lo > constants.LargeSpreadWarning {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Large pricing spread: %.1f%% to %.1f%%", lo*100, hi*100))
	}

	report.IsValid = len(report.Errors) == 0
	return report
}

func spread(adj map[constants.Band]float64) (lo, hi float64, ok bool) {
	for i, b := range constants.Bands {
		v, present := adj[b]
		if !present {
			return 0, 0, false
		}
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}
	return lo, hi, true
}

// Update merges changes into a candidate copy of the current table and commits it only if the
// candidate is valid. On rejection the current table is left untouched and a VALIDATION_ERROR
// is returned. The returned report carries warnings for accepted updates too.
func (t *PricingTable) Update(changes map[constants.Band]float64) (models.ValidationReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	candidate := t.current.Load().Clone()
	for b, v := range changes {
		candidate.Adjustments[b] = v
	}
	return t.commitLocked(candidate, true)
}

// UpdateRules replaces the rules, validating them against the current adjustments.
func (t *PricingTable) UpdateRules(rules models.PricingRules) (models.ValidationReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	candidate := t.current.Load().Clone()
	candidate.Rules = rules
	return t.commitLocked(candidate, true)
}

// ResetToDefaults restores the built-in adjustments, keeping the current rules.
func (t *PricingTable) ResetToDefaults() (models.ValidationReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	candidate := t.current.Load().Clone()
	candidate.Adjustments = make(map[constants.Band]float64, len(t.defaults))
	for b, v := range t.defaults {
		candidate.Adjustments[b] = v
	}
	return t.commitLocked(candidate, true)
}

// Replace swaps in a complete configuration, keeping its version and timestamp.
// Used by Import and the table file watcher.
func (t *PricingTable) Replace(cfg *models.PricingConfig) (models.ValidationReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	candidate := cfg.Clone()
	if candidate.Version == "" {
		candidate.Version = t.nextVersion(t.current.Load().Version)
	}
	if candidate.LastUpdated.IsZero() {
		candidate.LastUpdated = t.now()
		candidate.UpdatedBy = t.writer
	}
	return t.commitLocked(candidate, false)
}

// Merge applies a snapshot received from another instance if it supersedes the current one.
// Updates are whole-table last-writer-wins, so every replica converges on the same snapshot
// whatever order the updates arrive in. A superseded or identical snapshot is ignored.
func (t *PricingTable) Merge(cfg *models.PricingConfig) (bool, models.ValidationReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !cfg.Supersedes(t.current.Load()) {
		return false, models.ValidationReport{IsValid: true, Warnings: []string{}, Errors: []string{}}, nil
	}
	report, err := t.commitLocked(cfg.Clone(), false)
	return err == nil, report, err
}

func (t *PricingTable) commitLocked(candidate *models.PricingConfig, bump bool) (models.ValidationReport, error) {
	report := t.ValidateConfig(candidate)
	if !report.IsValid {
		return report, errors.ErrValidation(report.Errors).WithMetadata("warnings", report.Warnings)
	}
	if bump {
		candidate.Version = t.nextVersion(t.current.Load().Version)
		candidate.LastUpdated = t.now()
		candidate.UpdatedBy = t.writer
	}
	t.current.Store(candidate)
	return report, nil
}

type pricingDocument struct {
	Version            string                     `json:"version"`
	LastUpdated        time.Time                  `json:"last_updated"`
	Adjustments        map[constants.Band]float64 `json:"adjustments"`
	Rules              models.PricingRules        `json:"rules"`
	DefaultAdjustments map[constants.Band]float64 `json:"default_adjustments,omitempty"`
}

// Export writes the current configuration as indented JSON.
func (t *PricingTable) Export(w io.Writer) error {
	cfg := t.current.Load()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(pricingDocument{
		Version:            cfg.Version,
		LastUpdated:        cfg.LastUpdated,
		Adjustments:        cfg.Adjustments,
		Rules:              cfg.Rules,
		DefaultAdjustments: t.defaults,
	})
}

// ParsePricingDocument decodes an exported configuration without applying it.
func ParsePricingDocument(r io.Reader) (*models.PricingConfig, error) {
	var doc pricingDocument
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "malformed pricing document")
	}
	if doc.Adjustments == nil {
		return nil, errors.ErrInvalidInput("pricing document has no adjustments")
	}
	return &models.PricingConfig{
		Adjustments: doc.Adjustments,
		Rules:       doc.Rules,
		Version:     doc.Version,
		LastUpdated: doc.LastUpdated,
	}, nil
}

// Import reads an exported configuration and replaces the current one if it is valid.
// The document keeps its version label but is stamped as a write by this instance, so
// peers order it after whatever they currently hold.
func (t *PricingTable) Import(r io.Reader) (models.ValidationReport, error) {
	cfg, err := ParsePricingDocument(r)
	if err != nil {
		return models.ValidationReport{}, err
	}
	cfg.LastUpdated = time.Time{}
	return t.Replace(cfg)
}

// ScenarioAnalysis shows what each band's raw adjustment does to basePremium.
func (t *PricingTable) ScenarioAnalysis(basePremium float64) models.ScenarioAnalysis {
	cfg := t.current.Load()
	out := models.ScenarioAnalysis{BasePremium: basePremium}
	for i, b := range constants.Bands {
		adj := cfg.Adjustments[b]
		np := basePremium * (1 + adj)
		out.Scenarios = append(out.Scenarios, models.BandScenario{
			Band:          b,
			DeltaPct:      adj,
			NewPremium:    np,
			PremiumChange: np - basePremium,
		})
		if i == 0 || np < out.MinPremium {
			out.MinPremium = np
		}
		if i == 0 || np > out.MaxPremium {
			out.MaxPremium = np
		}
	}
	out.PremiumRange = out.MaxPremium - out.MinPremium
	return out
}

// PremiumImpact computes the portfolio-weighted adjustment for a band -> policy count distribution.
func (t *PricingTable) PremiumImpact(distribution map[constants.Band]int) (models.PremiumImpact, error) {
	total := 0
	for b, n := range distribution {
		if !b.Valid() || n < 0 {
			return models.PremiumImpact{}, errors.ErrInvalidInput("invalid distribution entry %s=%d", b, n)
		}
		total += n
	}
	if total == 0 {
		return models.PremiumImpact{}, errors.ErrInvalidInput("no policies in distribution")
	}

	cfg := t.current.Load()
	out := models.PremiumImpact{BandShares: make(map[constants.Band]float64, len(distribution)), TotalPolicies: total}
	for b, n := range distribution {
		share := float64(n) / float64(total)
		out.BandShares[b] = share
		out.WeightedAdjustment += cfg.Adjustments[b] * share
	}
	return out, nil
}

// nextVersion bumps v and tags it with the writer as semver build metadata.
func (t *PricingTable) nextVersion(v string) string {
	next := bumpPatch(v)
	if t.writer != "" {
		next += "+" + t.writer
	}
	return next
}

// bumpPatch increments the patch component of a "vMAJOR.MINOR.PATCH[+build]" version.
func bumpPatch(v string) string {
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	if len(parts) == 3 {
		if patch, err := strconv.Atoi(parts[2]); err == nil {
			return fmt.Sprintf("v%s.%s.%d", parts[0], parts[1], patch+1)
		}
	}
	return v + ".1"
}
