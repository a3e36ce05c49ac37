package station

// Unit conversions from the station's native metric units to the derived
// units carried alongside them. A nil input stays nil so absent fields never
// acquire a fabricated value.

func CToF(c *float64) *float64 {
	if c == nil {
		return nil
	}
	v := *c*9/5 + 32
	return &v
}

func MpsToKt(m *float64) *float64 {
	if m == nil {
		return nil
	}
	v := *m * 1.943844
	return &v
}

func HpaToInHg(h *float64) *float64 {
	if h == nil {
		return nil
	}
	v := *h * 0.0295299830714
	return &v
}

func MmToIn(mm *float64) *float64 {
	if mm == nil {
		return nil
	}
	v := *mm / 25.4
	return &v
}
