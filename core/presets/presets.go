package presets

import (
	"fmt"
	"sort"
)

// Profile names a bundle of default hyperparameters
type Profile string

const (
	ProfilePortrait Profile = "portrait"
	ProfileStyle    Profile = "style"
	ProfileProduct  Profile = "product"
	ProfileAnime    Profile = "anime"
)

// Precision is the numeric precision used for training
type Precision string

const (
	PrecisionBF16 Precision = "bf16"
	PrecisionFP16 Precision = "fp16"
)

// Hyperparameters is the bundle a profile expands to
type Hyperparameters struct {
	Epochs         int     `json:"epochs" yaml:"epochs"`
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate"`
	BatchSize      int     `json:"batch_size" yaml:"batch_size"`
	Rank           int     `json:"rank" yaml:"rank"`
	Alpha          int     `json:"alpha" yaml:"alpha"`
	CaptionDropout float64 `json:"caption_dropout" yaml:"caption_dropout"`
}

var profiles = map[Profile]Hyperparameters{
	ProfilePortrait: {Epochs: 10, LearningRate: 0.0001, BatchSize: 1, Rank: 32, Alpha: 16, CaptionDropout: 0.05},
	ProfileStyle:    {Epochs: 14, LearningRate: 0.00008, BatchSize: 1, Rank: 64, Alpha: 32, CaptionDropout: 0.1},
	ProfileProduct:  {Epochs: 8, LearningRate: 0.00012, BatchSize: 2, Rank: 32, Alpha: 16, CaptionDropout: 0.02},
	ProfileAnime:    {Epochs: 12, LearningRate: 0.00009, BatchSize: 1, Rank: 48, Alpha: 24, CaptionDropout: 0.08},
}

// Lookup returns the hyperparameters for a profile
func Lookup(p Profile) (Hyperparameters, error) {
	h, ok := profiles[p]
	if !ok {
		return Hyperparameters{}, fmt.Errorf("unknown profile %q", p)
	}
	return h, nil
}

// Profiles lists the known profile names in sorted order
func Profiles() []Profile {
	out := make([]Profile, 0, len(profiles))
	for p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VRAMSuggestion is the advisory result of SuggestByVRAM
type VRAMSuggestion struct {
	BatchSize int       `json:"batch_size"`
	Rank      int       `json:"rank"`
	Precision Precision `json:"precision"`
}

// SuggestByVRAM maps GPU memory in GB to batch size, rank and precision
func SuggestByVRAM(vramGB float64) VRAMSuggestion {
	switch {
	case vramGB >= 40:
		return VRAMSuggestion{BatchSize: 4, Rank: 128, Precision: PrecisionBF16}
	case vramGB >= 24:
		return VRAMSuggestion{BatchSize: 2, Rank: 64, Precision: PrecisionBF16}
	case vramGB >= 16:
		return VRAMSuggestion{BatchSize: 1, Rank: 48, Precision: PrecisionFP16}
	default:
		return VRAMSuggestion{BatchSize: 1, Rank: 32, Precision: PrecisionFP16}
	}
}

func (s VRAMSuggestion) String() string {
	return fmt.Sprintf("%s, batch %d, rank %d", s.Precision, s.BatchSize, s.Rank)
}
