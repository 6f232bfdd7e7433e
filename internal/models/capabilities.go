package models

// Capabilities are the medical equipment flags carried by a vehicle and
// requested by a call or transport.
type Capabilities struct {
	Oxygen         bool `json:"oxygen" bson:"oxygen"`
	Ventilator     bool `json:"ventilator" bson:"ventilator"`
	CardiacMonitor bool `json:"cardiac_monitor" bson:"cardiac_monitor"`
	Neonatal       bool `json:"neonatal" bson:"neonatal"`
	Bariatric      bool `json:"bariatric" bson:"bariatric"`
	Isolation      bool `json:"isolation" bson:"isolation"`
	Wheelchair     bool `json:"wheelchair" bson:"wheelchair"`
	Stretcher      bool `json:"stretcher" bson:"stretcher"`
}

// Satisfies reports whether every flag set in req is also set in c.
func (c Capabilities) Satisfies(req Capabilities) bool {
	return (!req.Oxygen || c.Oxygen) &&
		(!req.Ventilator || c.Ventilator) &&
		(!req.CardiacMonitor || c.CardiacMonitor) &&
		(!req.Neonatal || c.Neonatal) &&
		(!req.Bariatric || c.Bariatric) &&
		(!req.Isolation || c.Isolation) &&
		(!req.Wheelchair || c.Wheelchair) &&
		(!req.Stretcher || c.Stretcher)
}

func (c Capabilities) Names() []string {
	var names []string
	if c.Oxygen {
		names = append(names, "oxygen")
	}
	if c.Ventilator {
		names = append(names, "ventilator")
	}
	if c.CardiacMonitor {
		names = append(names, "cardiac_monitor")
	}
	if c.Neonatal {
		names = append(names, "neonatal")
	}
	if c.Bariatric {
		names = append(names, "bariatric")
	}
	if c.Isolation {
		names = append(names, "isolation")
	}
	if c.Wheelchair {
		names = append(names, "wheelchair")
	}
	if c.Stretcher {
		names = append(names, "stretcher")
	}
	return names
}
