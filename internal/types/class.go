package types

import (
	"fmt"
	"strings"
)

// ObjectClass is the semantic label of a detection or track. The numeric value
// doubles as the row/column index into the association matrices.
type ObjectClass int

const (
	ClassUnknown ObjectClass = iota
	ClassCar
	ClassTruck
	ClassBus
	ClassTrailer
	ClassMotorcycle
	ClassBicycle
	ClassPedestrian
)

// NumClasses is the size of the closed class set.
const NumClasses = 8

var classNames = [NumClasses]string{
	"UNKNOWN", "CAR", "TRUCK", "BUS", "TRAILER", "MOTORCYCLE", "BICYCLE", "PEDESTRIAN",
}

// AllClasses lists every class in index order.
func AllClasses() []ObjectClass {
	out := make([]ObjectClass, NumClasses)
	for i := range out {
		out[i] = ObjectClass(i)
	}
	return out
}

func (c ObjectClass) String() string {
	if !c.Valid() {
		return fmt.Sprintf("ObjectClass(%d)", int(c))
	}
	return classNames[c]
}

// Valid reports whether c is one of the known classes.
func (c ObjectClass) Valid() bool {
	return c >= 0 && int(c) < NumClasses
}

// IsVehicle reports whether c is a four-wheeled (or larger) road vehicle.
func (c ObjectClass) IsVehicle() bool {
	switch c {
	case ClassCar, ClassTruck, ClassBus, ClassTrailer:
		return true
	}
	return false
}

// ParseObjectClass converts a configuration class name into an ObjectClass.
// "MOTORBIKE" is accepted as an alias of MOTORCYCLE.
func ParseObjectClass(name string) (ObjectClass, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "MOTORBIKE" {
		return ClassMotorcycle, nil
	}
	for i, cn := range classNames {
		if cn == n {
			return ObjectClass(i), nil
		}
	}
	return ClassUnknown, fmt.Errorf("unknown object class %q", name)
}

// ClassProbabilities holds one probability per class, indexed by ObjectClass.
type ClassProbabilities [NumClasses]float64

// Certain returns a probability vector with all mass on c.
func Certain(c ObjectClass) ClassProbabilities {
	var p ClassProbabilities
	if c.Valid() {
		p[c] = 1
	}
	return p
}

// Label returns the most probable class. Ties resolve to the lowest index and
// an all-zero vector yields ClassUnknown.
func (p ClassProbabilities) Label() ObjectClass {
	best := ClassUnknown
	bestP := 0.0
	for i, v := range p {
		if v > bestP {
			best = ObjectClass(i)
			bestP = v
		}
	}
	return best
}

// Normalized returns a copy scaled to sum to one. Negative and non-finite
// entries are treated as zero; an empty vector becomes certain UNKNOWN.
func (p ClassProbabilities) Normalized() ClassProbabilities {
	var sum float64
	var out ClassProbabilities
	for i, v := range p {
		if v > 0 && v < 1e300 {
			out[i] = v
			sum += v
		}
	}
	if sum <= 0 {
		return Certain(ClassUnknown)
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
