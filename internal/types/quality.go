package types

import "slices"

// PainQuality is a descriptor chosen from a fixed vocabulary.
type PainQuality string

// Pain quality vocabulary.
const (
	QualityDullAching     PainQuality = "dull_aching"
	QualitySharp          PainQuality = "sharp"
	QualityStabbing       PainQuality = "stabbing"
	QualityThrobbing      PainQuality = "throbbing"
	QualityPressure       PainQuality = "pressure"
	QualityTightness      PainQuality = "tightness"
	QualityCramping       PainQuality = "cramping"
	QualitySore           PainQuality = "sore"
	QualityStiff          PainQuality = "stiff"
	QualityBurning        PainQuality = "burning"
	QualityShooting       PainQuality = "shooting"
	QualityElectric       PainQuality = "electric"
	QualityTingling       PainQuality = "tingling"
	QualityNumb           PainQuality = "numb"
	QualityHypersensitive PainQuality = "hypersensitive"
	QualityColicky        PainQuality = "colicky"
	QualityGnawing        PainQuality = "gnawing"
	QualitySqueezing      PainQuality = "squeezing"
	QualityDeepInternal   PainQuality = "deep_internal"
	QualityBloating       PainQuality = "bloating"
	QualityPulsing        PainQuality = "pulsing"
	QualityTearing        PainQuality = "tearing"
	QualityItching        PainQuality = "itching"
	QualityCold           PainQuality = "cold"
	QualityHot            PainQuality = "hot"
	QualityOther          PainQuality = "other"
	QualityUndescribed    PainQuality = "undescribed"
)

var painQualities = []PainQuality{
	QualityDullAching, QualitySharp, QualityStabbing, QualityThrobbing, QualityPressure,
	QualityTightness, QualityCramping, QualitySore, QualityStiff, QualityBurning,
	QualityShooting, QualityElectric, QualityTingling, QualityNumb, QualityHypersensitive,
	QualityColicky, QualityGnawing, QualitySqueezing, QualityDeepInternal, QualityBloating,
	QualityPulsing, QualityTearing, QualityItching, QualityCold, QualityHot, QualityOther,
	QualityUndescribed,
}

var neuropathicQualities = []PainQuality{
	QualityBurning, QualityShooting, QualityElectric, QualityTingling, QualityNumb, QualityHypersensitive,
}

// Valid reports whether q belongs to the vocabulary.
func (q PainQuality) Valid() bool {
	return slices.Contains(painQualities, q)
}

// PainQualities returns the full vocabulary in display order.
func PainQualities() []PainQuality {
	return slices.Clone(painQualities)
}

// HasNeuropathicPattern reports whether any quality suggests nerve involvement.
func HasNeuropathicPattern(qualities []PainQuality) bool {
	for _, q := range qualities {
		if slices.Contains(neuropathicQualities, q) {
			return true
		}
	}
	return false
}
