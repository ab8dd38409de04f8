package mbus

// Quantity describes what a data record measures.
type Quantity struct {
	Name     string
	Unit     string
	Exponent int // decimal exponent applied to the raw value
}

// Known reports whether the VIF resolved to a quantity.
func (q Quantity) Known() bool {
	return q.Name != ""
}

var durationUnits = [4]string{"s", "min", "h", "d"}

// lookupPrimaryVIF resolves a primary VIF (extension bit cleared).
func lookupPrimaryVIF(vif byte) Quantity {
	n := int(vif & 0x07)
	nn := int(vif & 0x03)
	switch {
	case vif <= 0x07:
		return Quantity{Name: "Energy", Unit: "Wh", Exponent: n - 3}
	case vif <= 0x0F:
		return Quantity{Name: "Energy", Unit: "J", Exponent: n}
	case vif <= 0x17:
		return Quantity{Name: "Volume", Unit: "m3", Exponent: n - 6}
	case vif <= 0x1F:
		return Quantity{Name: "Mass", Unit: "kg", Exponent: n - 3}
	case vif <= 0x23:
		return Quantity{Name: "On time", Unit: durationUnits[nn]}
	case vif <= 0x27:
		return Quantity{Name: "Operating time", Unit: durationUnits[nn]}
	case vif <= 0x2F:
		return Quantity{Name: "Power", Unit: "W", Exponent: n - 3}
	case vif <= 0x37:
		return Quantity{Name: "Power", Unit: "J/h", Exponent: n}
	case vif <= 0x3F:
		return Quantity{Name: "Volume flow", Unit: "m3/h", Exponent: n - 6}
	case vif <= 0x47:
		return Quantity{Name: "Volume flow", Unit: "m3/min", Exponent: n - 7}
	case vif <= 0x4F:
		return Quantity{Name: "Volume flow", Unit: "m3/s", Exponent: n - 9}
	case vif <= 0x57:
		return Quantity{Name: "Mass flow", Unit: "kg/h", Exponent: n - 3}
	case vif <= 0x5B:
		return Quantity{Name: "Flow temperature", Unit: "°C", Exponent: nn - 3}
	case vif <= 0x5F:
		return Quantity{Name: "Return temperature", Unit: "°C", Exponent: nn - 3}
	case vif <= 0x63:
		return Quantity{Name: "Temperature difference", Unit: "K", Exponent: nn - 3}
	case vif <= 0x67:
		return Quantity{Name: "External temperature", Unit: "°C", Exponent: nn - 3}
	case vif <= 0x6B:
		return Quantity{Name: "Pressure", Unit: "bar", Exponent: nn - 3}
	case vif == 0x6C:
		return Quantity{Name: "Date"}
	case vif == 0x6D:
		return Quantity{Name: "Date and time"}
	case vif == 0x6E:
		return Quantity{Name: "Units for H.C.A."}
	case vif >= 0x70 && vif <= 0x73:
		return Quantity{Name: "Averaging duration", Unit: durationUnits[nn]}
	case vif >= 0x74 && vif <= 0x77:
		return Quantity{Name: "Actuality duration", Unit: durationUnits[nn]}
	case vif == 0x78:
		return Quantity{Name: "Fabrication number"}
	case vif == 0x79:
		return Quantity{Name: "Enhanced identification"}
	case vif == 0x7A:
		return Quantity{Name: "Bus address"}
	case vif == 0x7E:
		return Quantity{Name: "Any VIF"}
	case vif == 0x7F:
		return Quantity{Name: "Manufacturer specific"}
	}
	return Quantity{}
}

// lookupExtendedVIF resolves the first VIFE following VIF 0xFD.
func lookupExtendedVIF(vife byte) Quantity {
	switch vife &= 0x7F; {
	case vife == 0x08:
		return Quantity{Name: "Access number"}
	case vife == 0x09:
		return Quantity{Name: "Medium"}
	case vife == 0x0A:
		return Quantity{Name: "Manufacturer"}
	case vife == 0x0B:
		return Quantity{Name: "Parameter set identification"}
	case vife == 0x0C:
		return Quantity{Name: "Model version"}
	case vife == 0x0D:
		return Quantity{Name: "Hardware version"}
	case vife == 0x0E:
		return Quantity{Name: "Firmware version"}
	case vife == 0x0F:
		return Quantity{Name: "Software version"}
	case vife == 0x17:
		return Quantity{Name: "Error flags"}
	case vife == 0x1A:
		return Quantity{Name: "Digital output"}
	case vife == 0x1B:
		return Quantity{Name: "Digital input"}
	case vife >= 0x40 && vife <= 0x4F:
		return Quantity{Name: "Voltage", Unit: "V", Exponent: int(vife&0x0F) - 9}
	case vife >= 0x50 && vife <= 0x5F:
		return Quantity{Name: "Current", Unit: "A", Exponent: int(vife&0x0F) - 12}
	}
	return Quantity{}
}
