package association

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/objectfusion/internal/config"
	"github.com/banshee-data/objectfusion/internal/types"
)

// ErrInvalidMatrix is returned when an association matrix is malformed.
var ErrInvalidMatrix = errors.New("association: invalid matrix")

const cells = types.NumClasses * types.NumClasses

// Matrices holds the class-pair gating tables, row-major with the track
// class as row and the detection class as column.
type Matrices struct {
	CanAssign []bool
	MaxDist   []float64 // metres
	MaxArea   []float64 // m², detection footprint
	MinArea   []float64 // m², detection footprint
	MaxRad    []float64 // radians; values ≥ π disable the heading gate
	MinIoU    []float64
}

// MatricesFromTuning builds and validates Matrices from a loaded TuningConfig.
func MatricesFromTuning(cfg *config.TuningConfig) (Matrices, error) {
	can := cfg.GetCanAssignMatrix()
	m := Matrices{
		CanAssign: make([]bool, len(can)),
		MaxDist:   cfg.GetMaxDistMatrix(),
		MaxArea:   cfg.GetMaxAreaMatrix(),
		MinArea:   cfg.GetMinAreaMatrix(),
		MaxRad:    cfg.GetMaxRadMatrix(),
		MinIoU:    cfg.GetMinIoUMatrix(),
	}
	for i, v := range can {
		m.CanAssign[i] = v != 0
	}
	if err := m.Validate(); err != nil {
		return Matrices{}, err
	}
	return m, nil
}

// Validate checks sizes and value ranges.
func (m Matrices) Validate() error {
	if len(m.CanAssign) != cells {
		return fmt.Errorf("%w: can_assign has %d entries, want %d", ErrInvalidMatrix, len(m.CanAssign), cells)
	}
	for name, v := range map[string][]float64{
		"max_dist": m.MaxDist,
		"max_area": m.MaxArea,
		"min_area": m.MinArea,
		"max_rad":  m.MaxRad,
		"min_iou":  m.MinIoU,
	} {
		if len(v) != cells {
			return fmt.Errorf("%w: %s has %d entries, want %d", ErrInvalidMatrix, name, len(v), cells)
		}
		for i, x := range v {
			if math.IsNaN(x) || x < 0 {
				return fmt.Errorf("%w: %s[%d] = %v", ErrInvalidMatrix, name, i, x)
			}
		}
	}
	for i := 0; i < cells; i++ {
		if m.MinArea[i] > m.MaxArea[i] {
			return fmt.Errorf("%w: min_area[%d] %v exceeds max_area %v", ErrInvalidMatrix, i, m.MinArea[i], m.MaxArea[i])
		}
		if m.CanAssign[i] && m.MaxDist[i] <= 0 {
			return fmt.Errorf("%w: max_dist[%d] must be positive for an assignable pair", ErrInvalidMatrix, i)
		}
	}
	return nil
}

func index(track, det types.ObjectClass) int {
	return int(track)*types.NumClasses + int(det)
}
