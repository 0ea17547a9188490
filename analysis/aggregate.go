package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"shelterstat/metrics"
	"shelterstat/record"
	"shelterstat/risk"
)

// Aggregate folds the records that pass f into dashboard statistics and the
// row-level datasets. It is a pure function of its inputs: the same records
// and filters always give the same Result, and malformed records never stop
// the pass.
func Aggregate(records []record.InspectionRecord, f Filters, opts Options) *Result {
	start := time.Now()
	opts = opts.withDefaults()

	filtered := ApplyFilters(records, f)
	acc := newAccumulator(opts)
	for i := range filtered {
		acc.addRecord(&filtered[i])
	}

	res := &Result{
		Stats: acc.buildStats(),
		Rows:  ApplyStatus(acc.rows, f.Status),
	}
	metrics.RecordAggregation(time.Since(start), len(filtered))
	return res
}

type dayKey struct {
	year  int
	month time.Month
	day   int
}

type monthKey struct {
	year  int
	month time.Month
}

type techAgg struct {
	id          string
	name        string
	visits      int
	regionCount map[string]int
	regionOrder []string
}

type accumulator struct {
	opts  Options
	rows  Rows
	stats PanelStats

	monthly map[monthKey]int
	daily   map[dayKey]int

	regions     map[string]*RegionCount
	chemRegions map[string]*RegionChemistry
	acModels    map[string]int

	techs     map[string]*techAgg
	techOrder []string
}

func newAccumulator(opts Options) *accumulator {
	return &accumulator{
		opts:        opts,
		rows:        Rows{Sites: []SiteInfo{}, Batteries: []BatteryInfo{}, ACs: []ACInfo{}, Cabinets: []CabinetInfo{}},
		monthly:     make(map[monthKey]int),
		daily:       make(map[dayKey]int),
		regions:     make(map[string]*RegionCount),
		chemRegions: make(map[string]*RegionChemistry),
		acModels:    make(map[string]int),
		techs:       make(map[string]*techAgg),
	}
}

func (a *accumulator) addRecord(rec *record.InspectionRecord) {
	st := &a.stats
	site := SiteInfo{
		ID:             rec.ID,
		SiteCode:       rec.SiteCode,
		Region:         rec.StateUF,
		TechnicianID:   rec.TechnicianID,
		TechnicianName: rec.TechnicianName,
		CreatedAt:      rec.CreatedAt,
		TotalCabinets:  rec.TotalCabinets,
		HasGenerator:   rec.HasGenerator,
		HousekeepingOk: rec.HousekeepingStatus == record.StatusOK,
		GroundingOk:    rec.GroundingStatus == record.StatusOK,
		Housekeeping:   rec.HousekeepingStatus,
		Grounding:      rec.GroundingStatus,
	}

	var siteAutonomy []risk.AutonomyTier
	var siteObsolescence []risk.ObsolescenceTier

	for gi, cab := range rec.DeclaredCabinets() {
		g := gi + 1
		a.addCabinetEquipment(rec, g, cab, &site)

		var totalAh float64
		var banks int
		var cabinetAges []risk.ObsolescenceTier
		for bi, bank := range cab.Batteries {
			if bi >= record.MaxBatteriesPerCab {
				break
			}
			if !bank.Qualifies() {
				continue
			}
			info := a.addBattery(rec, g, bi+1, bank)
			if !info.StateOK() {
				site.BatteryIssues++
			}
			totalAh += bank.CapacityAh
			banks++
			cabinetAges = append(cabinetAges, risk.GenericObsolescence(info.AgeYears))
		}

		if banks == 0 {
			st.Autonomy.Gabinete.SemBanco++
			st.ObsolescenceRollups.Gabinete.SemBanco++
			continue
		}

		hours := risk.AutonomyHours(totalAh, a.opts.LoadCurrentA)
		autTier := risk.Autonomy(hours, rec.HasGenerator)
		obsTier, _ := risk.WorstObsolescence(cabinetAges...)

		a.rows.Cabinets = append(a.rows.Cabinets, CabinetInfo{
			SiteCode:         rec.SiteCode,
			Region:           rec.StateUF,
			Cabinet:          g,
			Banks:            banks,
			TotalAh:          totalAh,
			AutonomyHours:    math.Round(hours*100) / 100,
			AutonomyTier:     autTier,
			ObsolescenceTier: obsTier,
			HasGenerator:     rec.HasGenerator,
		})
		st.Autonomy.Gabinete.add(autTier)
		st.ObsolescenceRollups.Gabinete.add(obsTier)
		siteAutonomy = append(siteAutonomy, autTier)
		siteObsolescence = append(siteObsolescence, obsTier)
	}

	if worst, ok := risk.WorstAutonomy(siteAutonomy...); ok {
		site.AutonomyTier = worst
		st.Autonomy.Site.add(worst)
	} else {
		st.Autonomy.Site.SemBanco++
	}
	if worst, ok := risk.WorstObsolescence(siteObsolescence...); ok {
		site.ObsolescenceTier = worst
		st.ObsolescenceRollups.Site.add(worst)
	} else {
		st.ObsolescenceRollups.Site.SemBanco++
	}

	site.HasProblems = site.BatteryIssues > 0 || site.ACIssues > 0 ||
		rec.HousekeepingStatus == record.StatusNOK || rec.GroundingStatus == record.StatusNOK

	a.addSiteTotals(rec, site)
	a.rows.Sites = append(a.rows.Sites, site)
}

func (a *accumulator) addCabinetEquipment(rec *record.InspectionRecord, g int, cab record.Cabinet, site *SiteInfo) {
	st := &a.stats
	switch cab.Climatization {
	case record.ClimatizationAirConditioner:
		st.Climatization.AirConditioner++
	case record.ClimatizationFan:
		st.Climatization.Fan++
	case record.ClimatizationNotApplicable:
		st.Climatization.NotApplicable++
	}
	countOkNok(&st.Fan, cab.FanStatus)
	countOkNok(&st.PLC, cab.PLCStatus)

	for ui, unit := range cab.ACUnits {
		if ui >= record.MaxACUnitsPerCabinet {
			break
		}
		if !unit.Present() {
			continue
		}
		a.rows.ACs = append(a.rows.ACs, ACInfo{
			SiteCode: rec.SiteCode,
			Region:   rec.StateUF,
			Cabinet:  g,
			Unit:     ui + 1,
			Model:    unit.Model,
			Status:   unit.Status,
		})
		st.TotalACs++
		countOkNok(&st.ACs, unit.Status)
		if unit.Status == record.StatusNOK {
			site.ACIssues++
		}
		a.acModels[unit.Model]++
	}
}

func (a *accumulator) addBattery(rec *record.InspectionRecord, g, b int, bank record.BatteryBank) BatteryInfo {
	st := &a.stats
	chem := bank.Chemistry()
	age := risk.AgeYears(bank.ManufactureDate, a.opts.ReferenceYear)
	tier := risk.Obsolescence(age, chem)

	info := BatteryInfo{
		SiteCode:         rec.SiteCode,
		Region:           rec.StateUF,
		Cabinet:          g,
		Bank:             b,
		Chemistry:        chem,
		Type:             bank.Type,
		Manufacturer:     bank.Manufacturer,
		CapacityAh:       bank.CapacityAh,
		ManufactureDate:  bank.ManufactureDate,
		State:            bank.State,
		AgeYears:         age,
		ObsolescenceTier: tier,
	}
	a.rows.Batteries = append(a.rows.Batteries, info)

	st.TotalBatteries++
	st.Obsolescence.add(tier)
	st.BatteryAges.add(risk.GenericObsolescence(age))

	switch risk.ClassifyState(bank.State) {
	case risk.StateGood:
		st.BatteryStates.Good++
	case risk.StateBulging:
		st.BatteryStates.Bulging++
	case risk.StateLeaking:
		st.BatteryStates.Leaking++
	case risk.StateCracked:
		st.BatteryStates.Cracked++
	case risk.StateNoCharge:
		st.BatteryStates.NoCharge++
	case risk.StateOther:
		st.BatteryStates.Other++
	default:
		st.BatteryStates.Unreported++
	}
	if risk.NeedsReplacement(bank.State, tier) {
		st.ReplacementRequired++
	}

	region := regionLabel(rec.StateUF)
	rc, ok := a.chemRegions[region]
	if !ok {
		rc = &RegionChemistry{Region: region}
		a.chemRegions[region] = rc
	}
	if chem == record.ChemistryLithium {
		st.Chemistry.Lithium++
		rc.Lithium++
	} else {
		st.Chemistry.LeadAcid++
		rc.LeadAcid++
	}
	return info
}

func (a *accumulator) addSiteTotals(rec *record.InspectionRecord, site SiteInfo) {
	st := &a.stats
	st.TotalSites++
	if site.HasProblems {
		st.SitesNok++
	} else {
		st.SitesOk++
	}
	if rec.HasGenerator {
		st.GeneratorPresent++
	} else {
		st.GeneratorAbsent++
	}
	switch rec.HousekeepingStatus {
	case record.StatusOK:
		st.HousekeepingOk++
	case record.StatusNOK:
		st.HousekeepingNok++
	}
	switch rec.GroundingStatus {
	case record.StatusOK:
		st.GroundingOk++
	case record.StatusNOK:
		st.GroundingNok++
	}

	region := regionLabel(rec.StateUF)
	rc, ok := a.regions[region]
	if !ok {
		rc = &RegionCount{Region: region}
		a.regions[region] = rc
	}
	rc.Total++
	if site.HasProblems {
		rc.Nok++
	} else {
		rc.Ok++
	}

	if !rec.CreatedAt.IsZero() {
		y, m, d := rec.CreatedAt.Date()
		a.monthly[monthKey{y, m}]++
		a.daily[dayKey{y, m, d}]++
	}

	key := technicianKey(rec)
	t, ok := a.techs[key]
	if !ok {
		t = &techAgg{id: rec.TechnicianID, name: rec.TechnicianName, regionCount: make(map[string]int)}
		a.techs[key] = t
		a.techOrder = append(a.techOrder, key)
	}
	t.visits++
	if t.name == "" {
		t.name = rec.TechnicianName
	}
	if _, seen := t.regionCount[rec.StateUF]; !seen {
		t.regionOrder = append(t.regionOrder, rec.StateUF)
	}
	t.regionCount[rec.StateUF]++
}

// technicianKey groups visits by the stable technician id, falling back to the
// folded name when the id is missing.
func technicianKey(rec *record.InspectionRecord) string {
	if rec.TechnicianID != "" {
		return "id:" + rec.TechnicianID
	}
	return "name:" + record.Fold(rec.TechnicianName)
}

// NoRegion labels records without a region in the distributions.
const NoRegion = "N/A"

func regionLabel(uf string) string {
	if uf == "" {
		return NoRegion
	}
	return uf
}

func countOkNok(c *OkNok, s record.Status) {
	switch s {
	case record.StatusOK:
		c.Ok++
	case record.StatusNOK:
		c.Nok++
	}
}

// percent is round(part/total*100), 0 for an empty population.
func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func (a *accumulator) buildStats() PanelStats {
	st := a.stats

	st.SitesOkPct = percent(st.SitesOk, st.TotalSites)
	st.BatteriesOkPct = percent(st.BatteryStates.Good+st.BatteryStates.Unreported, st.TotalBatteries)
	st.ACsOkPct = percent(st.ACs.Ok, st.TotalACs)
	st.GeneratorPct = percent(st.GeneratorPresent, st.TotalSites)
	st.HousekeepingOkPct = percent(st.HousekeepingOk, st.TotalSites)
	st.GroundingOkPct = percent(st.GroundingOk, st.TotalSites)

	st.Monthly = a.monthlySeries()
	st.Daily = a.dailySeries()
	st.Regions = a.regionSeries()
	st.ChemistryByRegion = a.chemistrySeries()
	st.ACModels = a.acModelSeries()

	st.TechnicianRanking = a.technicianRanking()
	st.TechnicianCount = len(a.techOrder)
	if st.TechnicianCount > 0 {
		st.AvgPerTechnician = math.Round(float64(st.TotalSites)/float64(st.TechnicianCount)*10) / 10
	}
	return st
}

func (a *accumulator) monthlySeries() []SeriesPoint {
	keys := make([]monthKey, 0, len(a.monthly))
	for k := range a.monthly {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})
	out := make([]SeriesPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, SeriesPoint{
			Label: fmt.Sprintf("%02d/%d", int(k.month), k.year),
			Count: a.monthly[k],
		})
	}
	return out
}

// dailySeries returns the most recent DailyWindow days with visits, oldest
// first. Days without visits are not counted, so the window can cover more
// than DailyWindow calendar days. Ordering compares full calendar dates so
// December sorts before the following January.
func (a *accumulator) dailySeries() []SeriesPoint {
	keys := make([]dayKey, 0, len(a.daily))
	for k := range a.daily {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ki, kj := keys[i], keys[j]
		if ki.year != kj.year {
			return ki.year < kj.year
		}
		if ki.month != kj.month {
			return ki.month < kj.month
		}
		return ki.day < kj.day
	})
	if len(keys) > a.opts.DailyWindow {
		keys = keys[len(keys)-a.opts.DailyWindow:]
	}
	out := make([]SeriesPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, SeriesPoint{
			Label: fmt.Sprintf("%02d/%02d", k.day, int(k.month)),
			Count: a.daily[k],
		})
	}
	return out
}

func (a *accumulator) regionSeries() []RegionCount {
	out := make([]RegionCount, 0, len(a.regions))
	for _, rc := range a.regions {
		out = append(out, *rc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Region < out[j].Region
	})
	return out
}

func (a *accumulator) chemistrySeries() []RegionChemistry {
	out := make([]RegionChemistry, 0, len(a.chemRegions))
	for _, rc := range a.chemRegions {
		out = append(out, *rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out
}

func (a *accumulator) acModelSeries() []NamedCount {
	out := make([]NamedCount, 0, len(a.acModels))
	for name, n := range a.acModels {
		out = append(out, NamedCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// technicianRanking sorts by visits, descending; ties keep first-seen order.
func (a *accumulator) technicianRanking() []TechnicianStat {
	out := make([]TechnicianStat, 0, len(a.techOrder))
	for _, key := range a.techOrder {
		t := a.techs[key]
		top, best := "", 0
		for _, r := range t.regionOrder {
			if n := t.regionCount[r]; n > best {
				top, best = r, n
			}
		}
		out = append(out, TechnicianStat{
			TechnicianID: t.id,
			Name:         t.name,
			Visits:       t.visits,
			TopRegion:    top,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Visits > out[j].Visits })
	return out
}
