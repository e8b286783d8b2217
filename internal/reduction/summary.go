package reduction

// Summary is the reduction rollup embedded in an emission summary: net reduction totals for a client/period, split by
// mechanism and by the descriptive axes entries carry.
type Summary struct {
	TotalNetReduction float64
	TotalHigh         float64
	TotalLow          float64

	ByMechanism   map[Mechanism]float64
	ByMethodology map[Methodology]float64
	ByCategory    map[string]float64
	ByScope       map[string]float64
	ByLocation    map[string]float64
	ByActivity    map[string]float64
	ByProject     map[string]float64

	EntryCount int
}

func newSummary() Summary {
	return Summary{
		ByMechanism:   make(map[Mechanism]float64),
		ByMethodology: make(map[Methodology]float64),
		ByCategory:    make(map[string]float64),
		ByScope:       make(map[string]float64),
		ByLocation:    make(map[string]float64),
		ByActivity:    make(map[string]float64),
		ByProject:     make(map[string]float64),
	}
}

func (s *Summary) add(e Entry) {
	s.TotalNetReduction += e.NetReduction
	s.TotalHigh += e.HighNetReduction
	s.TotalLow += e.LowNetReduction
	s.ByMechanism[e.Mechanism] += e.NetReduction
	s.ByMethodology[e.Methodology] += e.NetReduction
	if e.Category != "" {
		s.ByCategory[e.Category] += e.NetReduction
	}
	if e.ScopeIdentifier != "" {
		s.ByScope[e.ScopeIdentifier] += e.NetReduction
	}
	if e.Location != "" {
		s.ByLocation[e.Location] += e.NetReduction
	}
	if e.Activity != "" {
		s.ByActivity[e.Activity] += e.NetReduction
	}
	s.ByProject[e.ProjectID] += e.NetReduction
	s.EntryCount++
}
