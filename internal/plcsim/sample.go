//
//
package plcsim

// SN classes in N/m², ascending.
var snClasses = []int{2500, 5000, 10000}

// passRatio is the share of the nominal class a sample must reach.
const passRatio = 0.9

// Sample models the pipe under test as a linear ring with a fixed stiffness.
type Sample struct {
	Stiffness float64 // N/m²
}

// ForceAt returns the load in kN needed to deflect the ring by deflection mm,
// per the ISO 9969 relation S = (0.0186 + 0.025·y/d)·F/(L·y).
func (s Sample) ForceAt(deflection, diameter, length float64) float64 {
	if deflection <= 0 || diameter <= 0 || length <= 0 {
		return 0
	}
	y := deflection / 1000
	l := length / 1000
	newtons := s.Stiffness * l * y / (0.0186 + 0.025*deflection/diameter)
	return newtons / 1000
}

// RingStiffness computes S in N/m² from a force in kN at a deflection in mm.
func RingStiffness(force, deflection, diameter, length float64) float64 {
	if deflection <= 0 || diameter <= 0 || length <= 0 {
		return 0
	}
	y := deflection / 1000
	l := length / 1000
	return (0.0186 + 0.025*deflection/diameter) * force * 1000 / (l * y)
}

// Classify maps a ring stiffness onto its nominal SN class and reports
// whether the sample reaches passRatio of that class.
func Classify(stiffness float64) (snClass int, passed bool) {
	snClass = snClasses[len(snClasses)-1]
	for i := 0; i < len(snClasses)-1; i++ {
		// Midpoint between neighbouring classes.
		if stiffness < float64(snClasses[i]+snClasses[i+1])/2 {
			snClass = snClasses[i]
			break
		}
	}
	return snClass, stiffness >= float64(snClass)*passRatio
}

// LoadCellRaw converts kN to the analog input count (27648 at 200 kN).
func LoadCellRaw(force float64) int {
	const fullScale, counts = 200.0, 27648
	raw := int(force / fullScale * counts)
	if raw < 0 {
		return 0
	}
	if raw > counts {
		return counts
	}
	return raw
}
