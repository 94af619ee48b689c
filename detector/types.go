package detector

import (
	"strconv"
	"time"
)

// PatternType classifies how CPUs share a line.
type PatternType uint8

const (
	NoSharing PatternType = iota
	TrueSharing
	FalseSharing
)

func (p PatternType) String() string {
	switch p {
	case NoSharing:
		return "no-sharing"
	case TrueSharing:
		return "true-sharing"
	case FalseSharing:
		return "false-sharing"
	}
	return "pattern(" + strconv.Itoa(int(p)) + ")"
}

// SuspiciousLine is a line whose access count crossed the threshold.
type SuspiciousLine struct {
	Address       uint64
	AccessCount   uint64
	ThreadCount   int
	LastDetection time.Time
	Severity      float32
}

// SharingPattern describes the CPUs behind a suspicious line.
type SharingPattern struct {
	LineAddress       uint64
	AccessingThreads  []int
	PatternType       PatternType
	Frequency         uint64
	HotWords          [2]int  // most-accessed word offsets, -1 when unused
	Distance          uint64  // bytes between the two hot words
	FalseSharingScore float32 // align.FalseSharingScore of the hot word addresses
}

// RecommendationType names a layout change.
type RecommendationType uint8

const (
	CacheAlign RecommendationType = iota
	DataPadding
	Restructure
	MoveData
)

var recommendationNames = [...]string{"cache-align", "data-padding", "restructure", "move-data"}

func (r RecommendationType) String() string {
	if int(r) < len(recommendationNames) {
		return recommendationNames[r]
	}
	return "recommendation(" + strconv.Itoa(int(r)) + ")"
}

// Priority orders recommendations.
type Priority uint8

const (
	Low Priority = iota
	Medium
	High
	Critical
)

var priorityNames = [...]string{"low", "medium", "high", "critical"}

func (p Priority) String() string {
	if int(p) < len(priorityNames) {
		return priorityNames[p]
	}
	return "priority(" + strconv.Itoa(int(p)) + ")"
}

// Recommendation is advisory; nothing in this module moves caller data.
type Recommendation struct {
	Address             uint64
	Type                RecommendationType
	Priority            Priority
	ExpectedImprovement float32 // in [0, 1]
}
