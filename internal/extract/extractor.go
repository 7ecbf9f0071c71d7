package extract

import (
	"math"
	"strings"

	"advisor/internal/pkg/convert"
)

// Extractor 对模型自由文本做尽力而为的解析。无固定 schema，
// 字段取“按优先级第一个命中”，解析失败一律视为缺失。
type Extractor struct {
	registry *Registry
	fallback Snapshot
}

func NewExtractor(registry *Registry) *Extractor {
	return &Extractor{registry: registry, fallback: DefaultSnapshot()}
}

func (e *Extractor) snapshot() Snapshot {
	if e.registry != nil {
		return e.registry.Snapshot()
	}
	return e.fallback
}

// Extract 解析一段模型回复。幂等：同样的输入得到值相等的结果。
func (e *Extractor) Extract(text string) Plan {
	snap := e.snapshot()
	plan := Plan{
		Entry:      matchField(snap.entry, text),
		Stop:       matchField(snap.stop, text),
		TakeProfit: matchField(snap.takeProfit, text),
		Direction:  matchDirection(snap, text),
	}
	deriveMetrics(&plan)
	return plan
}

func matchField(m fieldMatcher, text string) *float64 {
	for _, re := range m.patterns {
		groups := re.FindStringSubmatch(text)
		if len(groups) < 2 {
			continue
		}
		if v, ok := convert.ParseAmount(groups[1]); ok {
			return floatPtr(v)
		}
	}
	return nil
}

// matchDirection 在固定词表里找最早出现的方向词。子串命中即可，
// 属于文档化的尽力而为行为，不做词法边界保证。
func matchDirection(snap Snapshot, text string) Direction {
	lower := strings.ToLower(text)
	bestIdx := -1
	var best Direction
	scan := func(words []string, dir Direction) {
		for _, w := range words {
			idx := strings.Index(lower, w)
			if idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
				bestIdx = idx
				best = dir
			}
		}
	}
	scan(snap.buyWords, DirectionBuy)
	scan(snap.sellWords, DirectionSell)
	return best
}

// deriveMetrics 每次解析都重新算派生值，输入缺失或退化时一律留空。
func deriveMetrics(p *Plan) {
	if p.Entry == nil || p.Stop == nil {
		appendDirectionWarning(p)
		return
	}
	entry, stop := *p.Entry, *p.Stop
	riskAbs := math.Abs(entry - stop)
	p.RiskAbsolute = floatPtr(riskAbs)
	if entry != 0 {
		p.RiskPercent = floatPtr(riskAbs / entry * 100)
	}
	if p.TakeProfit != nil && entry != stop {
		rr := math.Abs(*p.TakeProfit-entry) / riskAbs
		p.RiskReward = floatPtr(rr)
		switch {
		case rr < 1.5:
			p.Warnings = append(p.Warnings, WarnInefficientEntry)
		case rr < 3.0:
			p.Warnings = append(p.Warnings, WarnWeakStructureOnly)
		}
	}
	appendDirectionWarning(p)
}

func appendDirectionWarning(p *Plan) {
	if p.Entry == nil || p.TakeProfit == nil {
		return
	}
	entry, tp := *p.Entry, *p.TakeProfit
	if (p.Direction == DirectionSell && entry < tp) || (p.Direction == DirectionBuy && entry > tp) {
		p.Warnings = append(p.Warnings, WarnDirectionMismatch)
	}
}
