package anomaly

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type Type string

const (
	TypeSpike   Type = "spike"
	TypeDrop    Type = "drop"
	TypeOutlier Type = "outlier"
	TypePattern Type = "pattern"
	TypeMissing Type = "missing"
	TypeDrift   Type = "drift"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

type Method string

const (
	MethodZScore    Method = "zscore"
	MethodIQR       Method = "iqr"
	MethodPctChange Method = "pct_change"
	MethodMissing   Method = "missing"
	MethodRules     Method = "rules"
)

// Result is a single finding. Index is the sample position inside the series
// (-1 for series-level findings such as missing data).
type Result struct {
	MetricName string    `json:"metric_name"`
	Type       Type      `json:"anomaly_type"`
	Severity   Severity  `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
	Value      float64   `json:"value"`
	Expected   float64   `json:"expected_value"`
	Deviation  float64   `json:"deviation"`
	Threshold  float64   `json:"threshold"`
	Message    string    `json:"message"`
	Method     Method    `json:"method"`
	Index      int       `json:"index"`
}

func (r Result) IsCritical() bool {
	return r.Severity == SeverityCritical || r.Severity == SeverityHigh
}

type Report struct {
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	MetricsChecked int       `json:"metrics_checked"`
	AnomaliesFound int       `json:"anomalies_found"`
	CriticalCount  int       `json:"critical_count"`
	Anomalies      []Result  `json:"anomalies"`
}

func (r Report) HasCritical() bool { return r.CriticalCount > 0 }

// Baseline carries precomputed statistics. When supplied with AddMetric it is
// used instead of recomputing from the sample, so drift against a fixed
// historical window can be detected.
type Baseline struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

type Rule struct {
	Name     string
	Check    func(float64) bool
	Message  string
	Severity Severity
}

type metric struct {
	name     string
	values   []float64
	baseline Baseline
}

type Options struct {
	ZThreshold         float64 // default 3.0
	IQRMultiplier      float64 // default 1.5
	PctChangeThreshold float64 // default 50.0
}

// Detector accumulates named metric series and rules, then produces a
// deduplicated report. It performs no I/O; one instance per configuring caller.
type Detector struct {
	zThreshold         float64
	iqrMultiplier      float64
	pctChangeThreshold float64
	metrics            []metric
	rules              []Rule
}

func NewDetector(o Options) *Detector {
	if o.ZThreshold <= 0 {
		o.ZThreshold = 3.0
	}
	if o.IQRMultiplier <= 0 {
		o.IQRMultiplier = 1.5
	}
	if o.PctChangeThreshold <= 0 {
		o.PctChangeThreshold = 50.0
	}
	return &Detector{
		zThreshold:         o.ZThreshold,
		iqrMultiplier:      o.IQRMultiplier,
		pctChangeThreshold: o.PctChangeThreshold,
	}
}

// AddMetric registers a series. Missing samples are NaN. The series order is
// the caller's responsibility when temporal methods (pct_change) matter.
func (d *Detector) AddMetric(name string, values []float64, baseline *Baseline) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("anomaly: metric name is empty")
	}
	if len(values) == 0 {
		return fmt.Errorf("anomaly: metric %q has no samples", name)
	}
	m := metric{name: name, values: append([]float64(nil), values...)}
	if baseline != nil {
		m.baseline = *baseline
	} else {
		m.baseline = computeBaseline(m.values)
	}
	d.metrics = append(d.metrics, m)
	return nil
}

func (d *Detector) AddRule(r Rule) error {
	if r.Check == nil {
		return fmt.Errorf("anomaly: rule %q has no check", r.Name)
	}
	if r.Severity == "" {
		r.Severity = SeverityMedium
	}
	d.rules = append(d.rules, r)
	return nil
}

// Detect runs the selected methods (all, if none given) over every registered
// metric and returns the deduplicated report. Dedup key is
// (metric, anomaly type, index); the first occurrence wins, in method order
// zscore, iqr, pct_change, missing, rules.
func (d *Detector) Detect(methods ...Method) Report {
	startedAt := time.Now().UTC()
	if len(methods) == 0 {
		methods = []Method{MethodZScore, MethodIQR, MethodPctChange, MethodMissing, MethodRules}
	}
	selected := make(map[Method]bool, len(methods))
	for _, m := range methods {
		selected[m] = true
	}

	var all []Result
	for _, m := range d.metrics {
		if selected[MethodZScore] {
			all = append(all, d.detectZScore(m)...)
		}
		if selected[MethodIQR] {
			all = append(all, d.detectIQR(m)...)
		}
		if selected[MethodPctChange] {
			all = append(all, d.detectPctChange(m)...)
		}
		if selected[MethodMissing] {
			all = append(all, d.detectMissing(m)...)
		}
		if selected[MethodRules] {
			all = append(all, d.checkRules(m)...)
		}
	}

	type dedupKey struct {
		name  string
		typ   Type
		index int
	}
	seen := make(map[dedupKey]bool, len(all))
	unique := make([]Result, 0, len(all))
	critical := 0
	for _, a := range all {
		k := dedupKey{name: a.MetricName, typ: a.Type, index: a.Index}
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, a)
		if a.IsCritical() {
			critical++
		}
	}

	return Report{
		StartedAt:      startedAt,
		CompletedAt:    time.Now().UTC(),
		MetricsChecked: len(d.metrics),
		AnomaliesFound: len(unique),
		CriticalCount:  critical,
		Anomalies:      unique,
	}
}

func (d *Detector) detectZScore(m metric) []Result {
	mean, std := m.baseline.Mean, m.baseline.Std
	if std == 0 {
		return nil
	}

	var out []Result
	for i, v := range m.values {
		z := math.Abs(v-mean) / std
		if !(z > d.zThreshold) { // NaN compares false, skipping missing samples
			continue
		}
		typ := TypeDrop
		if v > mean {
			typ = TypeSpike
		}
		out = append(out, Result{
			MetricName: m.name,
			Type:       typ,
			Severity:   scaledSeverity(z, d.zThreshold),
			DetectedAt: time.Now().UTC(),
			Value:      v,
			Expected:   mean,
			Deviation:  z,
			Threshold:  d.zThreshold,
			Message:    fmt.Sprintf("%s value %.2f is %.2f standard deviations from mean %.2f", m.name, v, z, mean),
			Method:     MethodZScore,
			Index:      i,
		})
	}
	return out
}

func (d *Detector) detectIQR(m metric) []Result {
	q1, q3 := m.baseline.Q1, m.baseline.Q3
	iqr := q3 - q1
	if iqr == 0 {
		return nil
	}
	lower := q1 - d.iqrMultiplier*iqr
	upper := q3 + d.iqrMultiplier*iqr

	var out []Result
	for i, v := range m.values {
		if !(v < lower || v > upper) {
			continue
		}
		deviation := (lower - v) / iqr
		if v > upper {
			deviation = (v - upper) / iqr
		}
		out = append(out, Result{
			MetricName: m.name,
			Type:       TypeOutlier,
			Severity:   SeverityMedium,
			DetectedAt: time.Now().UTC(),
			Value:      v,
			Expected:   (q1 + q3) / 2,
			Deviation:  deviation,
			Threshold:  d.iqrMultiplier,
			Message:    fmt.Sprintf("%s value %.2f is outside IQR bounds [%.2f, %.2f]", m.name, v, lower, upper),
			Method:     MethodIQR,
			Index:      i,
		})
	}
	return out
}

func (d *Detector) detectPctChange(m metric) []Result {
	if len(m.values) < 2 {
		return nil
	}

	var out []Result
	for i := 1; i < len(m.values); i++ {
		prev, curr := m.values[i-1], m.values[i]
		if prev == 0 {
			continue
		}
		pct := (curr - prev) / math.Abs(prev) * 100
		if !(math.Abs(pct) > d.pctChangeThreshold) {
			continue
		}
		typ := TypeDrop
		if pct > 0 {
			typ = TypeSpike
		}
		out = append(out, Result{
			MetricName: m.name,
			Type:       typ,
			Severity:   scaledSeverity(math.Abs(pct), d.pctChangeThreshold),
			DetectedAt: time.Now().UTC(),
			Value:      curr,
			Expected:   prev,
			Deviation:  pct,
			Threshold:  d.pctChangeThreshold,
			Message:    fmt.Sprintf("%s changed by %.1f%% from %.2f to %.2f", m.name, pct, prev, curr),
			Method:     MethodPctChange,
			Index:      i,
		})
	}
	return out
}

func (d *Detector) detectMissing(m metric) []Result {
	missing := 0
	for _, v := range m.values {
		if math.IsNaN(v) {
			missing++
		}
	}
	pct := float64(missing) / float64(len(m.values)) * 100
	if pct <= 5 {
		return nil
	}

	severity := SeverityMedium
	switch {
	case pct > 50:
		severity = SeverityCritical
	case pct > 20:
		severity = SeverityHigh
	}
	return []Result{{
		MetricName: m.name,
		Type:       TypeMissing,
		Severity:   severity,
		DetectedAt: time.Now().UTC(),
		Value:      float64(missing),
		Expected:   0,
		Deviation:  pct,
		Threshold:  5.0,
		Message:    fmt.Sprintf("%s has %d (%.1f%%) missing values", m.name, missing, pct),
		Method:     MethodMissing,
		Index:      -1,
	}}
}

func (d *Detector) checkRules(m metric) []Result {
	var out []Result
	for _, rule := range d.rules {
		for i, v := range m.values {
			if !rule.Check(v) {
				continue
			}
			msg := rule.Message
			if strings.Contains(msg, "%") {
				msg = fmt.Sprintf(rule.Message, v)
			}
			out = append(out, Result{
				MetricName: m.name,
				Type:       TypePattern,
				Severity:   rule.Severity,
				DetectedAt: time.Now().UTC(),
				Value:      v,
				Message:    msg,
				Method:     MethodRules,
				Index:      i,
			})
		}
	}
	return out
}

// severity scales with multiples of the method threshold: >2x critical,
// >1.5x high, otherwise medium.
func scaledSeverity(deviation, threshold float64) Severity {
	switch {
	case deviation > threshold*2:
		return SeverityCritical
	case deviation > threshold*1.5:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
