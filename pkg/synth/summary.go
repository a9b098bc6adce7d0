package synth

import (
	"gonum.org/v1/gonum/stat"

	"riverdebris/internal/models"
)

// Summary describes a batch of synthesized samples
type Summary struct {
	Tiles    int `yaml:"tiles"`
	Injected int `yaml:"injected"`
	Positive int `yaml:"positive"`

	// PositiveRatio is Positive / Tiles
	PositiveRatio float64 `yaml:"positiveRatio"`

	// MeanAnomalyArea and StdAnomalyArea are taken over positive samples only
	MeanAnomalyArea float64 `yaml:"meanAnomalyArea"`
	StdAnomalyArea  float64 `yaml:"stdAnomalyArea"`
}

// Summarize computes batch statistics
func Summarize(samples []models.SynthesizedSample) Summary {
	s := Summary{Tiles: len(samples)}
	var areas []float64
	for _, sample := range samples {
		if sample.Injected {
			s.Injected++
		}
		if sample.Label {
			s.Positive++
			areas = append(areas, float64(sample.AnomalyMask.Sum()))
		}
	}
	if s.Tiles > 0 {
		s.PositiveRatio = float64(s.Positive) / float64(s.Tiles)
	}
	if len(areas) > 0 {
		s.MeanAnomalyArea = stat.Mean(areas, nil)
	}
	if len(areas) > 1 {
		s.StdAnomalyArea = stat.StdDev(areas, nil)
	}
	return s
}
