package detector

import (
	"coherency/align"
	"coherency/constants"

	"go.uber.org/zap"
)

// ApplyCorrections returns a recommendation for every suspicious line whose
// decayed severity exceeds constants.CorrectionSeverity. It returns nil when
// auto-correction is off.
func (d *Detector) ApplyCorrections() []Recommendation {
	if !d.autoCorrect.Load() {
		return nil
	}

	now := d.now()
	d.mu.RLock()
	lines := make([]SuspiciousLine, len(d.lines))
	slots := make([]int, len(d.slots))
	copy(lines, d.lines)
	copy(slots, d.slots)
	d.mu.RUnlock()

	var out []Recommendation
	for i, l := range lines {
		sev := d.EffectiveSeverity(l, now)
		if sev <= constants.CorrectionSeverity {
			continue
		}
		p, ok := d.Pattern(slots[i], l.Address)
		if !ok {
			p = SharingPattern{LineAddress: l.Address, PatternType: NoSharing}
		}
		out = append(out, correction(p, sev))
	}

	if len(out) > 0 {
		d.log.Debug("corrections emitted", zap.Int("count", len(out)))
	}
	return out
}

// correction maps a classified line to a layout change:
//
//	false sharing → pad the hot words apart
//	true sharing  → restructure to split the shared word
//	no sharing    → move the data off the contended set
func correction(p SharingPattern, severity float32) Recommendation {
	r := Recommendation{Address: p.LineAddress}
	switch p.PatternType {
	case FalseSharing:
		r.Type = DataPadding
		r.Priority = High
		if severity > 0.9 {
			r.Priority = Critical
		}
		r.ExpectedImprovement = clamp01(0.3 + 0.5*p.FalseSharingScore*severity)
	case TrueSharing:
		r.Type = Restructure
		r.Priority = Medium
		r.ExpectedImprovement = clamp01(0.2 * severity)
	default:
		r.Type = MoveData
		r.Priority = Low
		r.ExpectedImprovement = clamp01(0.1 * severity)
	}
	return r
}

// Advise recommends a layout change for addr given its line's access count.
// Lines under constants.HotLineAccesses get nothing. A hot line flagged with
// false sharing gets padding; any other hot line gets alignment, marked
// critical when addr is not line aligned.
func (d *Detector) Advise(slot int, addr, accessCount uint64) (Recommendation, bool) {
	if accessCount <= constants.HotLineAccesses {
		return Recommendation{}, false
	}

	lineAddr := align.AlignDown(addr)
	if p, ok := d.Pattern(slot, lineAddr); ok && p.PatternType == FalseSharing {
		d.mu.RLock()
		_, listed := d.byAddr[lineAddr]
		d.mu.RUnlock()
		if listed {
			return Recommendation{
				Address:             addr,
				Type:                DataPadding,
				Priority:            Critical,
				ExpectedImprovement: clamp01(0.3 + 0.5*p.FalseSharingScore),
			}, true
		}
	}

	r := Recommendation{
		Address:             addr,
		Type:                CacheAlign,
		Priority:            High,
		ExpectedImprovement: 0.3,
	}
	if !align.IsAligned(addr) {
		r.Priority = Critical
	}
	return r, true
}

func clamp01(f float32) float32 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
