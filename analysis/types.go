package analysis

import (
	"time"

	"shelterstat/record"
	"shelterstat/risk"
)

// Options are the engine constants that come from configuration.
type Options struct {
	ReferenceYear int     `json:"referenceYear"`
	LoadCurrentA  float64 `json:"loadCurrentA"`
	DailyWindow   int     `json:"dailyWindow"`
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		ReferenceYear: risk.DefaultReferenceYear,
		LoadCurrentA:  risk.DefaultLoadCurrentA,
		DailyWindow:   14,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReferenceYear <= 0 {
		o.ReferenceYear = d.ReferenceYear
	}
	if o.LoadCurrentA <= 0 {
		o.LoadCurrentA = d.LoadCurrentA
	}
	if o.DailyWindow <= 0 {
		o.DailyWindow = d.DailyWindow
	}
	return o
}

// BatteryInfo is one qualifying battery bank.
type BatteryInfo struct {
	SiteCode         string                `json:"siteCode"`
	Region           string                `json:"region"`
	Cabinet          int                   `json:"cabinet"`
	Bank             int                   `json:"bank"`
	Chemistry        record.Chemistry      `json:"chemistry"`
	Type             string                `json:"type"`
	Manufacturer     string                `json:"manufacturer"`
	CapacityAh       float64               `json:"capacityAh"`
	ManufactureDate  string                `json:"manufactureDate"`
	State            string                `json:"state"`
	AgeYears         int                   `json:"ageYears"`
	ObsolescenceTier risk.ObsolescenceTier `json:"obsolescenceTier"`
}

// StateOK reports whether the bank's physical state is OK.
func (b BatteryInfo) StateOK() bool {
	return risk.StateOK(b.State)
}

// ACInfo is one installed air-conditioning unit.
type ACInfo struct {
	SiteCode string        `json:"siteCode"`
	Region   string        `json:"region"`
	Cabinet  int           `json:"cabinet"`
	Unit     int           `json:"unit"`
	Model    string        `json:"model"`
	Status   record.Status `json:"status"`
}

// CabinetInfo is one cabinet with at least one qualifying battery bank.
type CabinetInfo struct {
	SiteCode         string                `json:"siteCode"`
	Region           string                `json:"region"`
	Cabinet          int                   `json:"cabinet"`
	Banks            int                   `json:"banks"`
	TotalAh          float64               `json:"totalAh"`
	AutonomyHours    float64               `json:"autonomyHours"`
	AutonomyTier     risk.AutonomyTier     `json:"autonomyTier"`
	ObsolescenceTier risk.ObsolescenceTier `json:"obsolescenceTier"`
	HasGenerator     bool                  `json:"hasGenerator"`
}

// SiteInfo is the per-visit summary row.
type SiteInfo struct {
	ID             string    `json:"id"`
	SiteCode       string    `json:"siteCode"`
	Region         string    `json:"region"`
	TechnicianID   string    `json:"technicianId"`
	TechnicianName string    `json:"technicianName"`
	CreatedAt      time.Time `json:"createdAt"`
	TotalCabinets  int       `json:"totalCabinets"`
	HasProblems    bool      `json:"hasProblems"`
	HasGenerator   bool      `json:"hasGenerator"`
	BatteryIssues  int       `json:"batteryIssues"`
	ACIssues       int       `json:"acIssues"`
	HousekeepingOk bool      `json:"housekeepingOk"`
	GroundingOk    bool      `json:"groundingOk"`
	// Raw checklist answers; NA and unset are neither OK nor NOK.
	Housekeeping record.Status `json:"housekeeping"`
	Grounding    record.Status `json:"grounding"`
	// Empty rollup tiers mean the site has no qualifying battery bank.
	AutonomyTier     risk.AutonomyTier     `json:"autonomyTier,omitempty"`
	ObsolescenceTier risk.ObsolescenceTier `json:"obsolescenceTier,omitempty"`
}

// OkNok is a pair of OK/NOK counts.
type OkNok struct {
	Ok  int `json:"ok"`
	Nok int `json:"nok"`
}

// BatteryStateCounts is the physical-state histogram.
type BatteryStateCounts struct {
	Good       int `json:"good"`
	Bulging    int `json:"bulging"`
	Leaking    int `json:"leaking"`
	Cracked    int `json:"cracked"`
	NoCharge   int `json:"noCharge"`
	Other      int `json:"other"`
	Unreported int `json:"unreported"`
}

// ObsolescenceCounts partitions units by obsolescence tier.
type ObsolescenceCounts struct {
	Ok       int `json:"ok"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
	SemBanco int `json:"semBanco,omitempty"`
}

// Classified is the number of units that received a tier.
func (c ObsolescenceCounts) Classified() int {
	return c.Ok + c.Warning + c.Critical
}

func (c *ObsolescenceCounts) add(t risk.ObsolescenceTier) {
	switch t {
	case risk.ObsolescenceOK:
		c.Ok++
	case risk.ObsolescenceWarning:
		c.Warning++
	case risk.ObsolescenceCritical:
		c.Critical++
	}
}

// AutonomyCounts partitions units by autonomy tier.
type AutonomyCounts struct {
	Ok         int `json:"ok"`
	MedioRisco int `json:"medioRisco"`
	AltoRisco  int `json:"altoRisco"`
	Critico    int `json:"critico"`
	SemBanco   int `json:"semBanco"`
}

// Classified is the number of units that received a tier.
func (c AutonomyCounts) Classified() int {
	return c.Ok + c.MedioRisco + c.AltoRisco + c.Critico
}

func (c *AutonomyCounts) add(t risk.AutonomyTier) {
	switch t {
	case risk.AutonomyOK:
		c.Ok++
	case risk.AutonomyMedioRisco:
		c.MedioRisco++
	case risk.AutonomyAltoRisco:
		c.AltoRisco++
	case risk.AutonomyCritico:
		c.Critico++
	}
}

// AutonomyRollup holds both units of analysis.
type AutonomyRollup struct {
	Gabinete AutonomyCounts `json:"gabinete"`
	Site     AutonomyCounts `json:"site"`
}

// ObsolescenceRollup holds both units of analysis for the 5/8-year badge.
type ObsolescenceRollup struct {
	Gabinete ObsolescenceCounts `json:"gabinete"`
	Site     ObsolescenceCounts `json:"site"`
}

// ChemistryCounts splits batteries by technology.
type ChemistryCounts struct {
	LeadAcid int `json:"leadAcid"`
	Lithium  int `json:"lithium"`
}

// RegionChemistry is ChemistryCounts for one region.
type RegionChemistry struct {
	Region string `json:"region"`
	ChemistryCounts
}

// ClimatizationCounts counts cabinets by cooling method.
type ClimatizationCounts struct {
	AirConditioner int `json:"airConditioner"`
	Fan            int `json:"fan"`
	NotApplicable  int `json:"notApplicable"`
}

// SeriesPoint is one bar of a time series.
type SeriesPoint struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// NamedCount is one entry of a categorical distribution.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RegionCount is the per-region site distribution.
type RegionCount struct {
	Region string `json:"region"`
	Total  int    `json:"total"`
	Ok     int    `json:"ok"`
	Nok    int    `json:"nok"`
}

// TechnicianStat is one row of the productivity ranking.
type TechnicianStat struct {
	TechnicianID string `json:"technicianId"`
	Name         string `json:"name"`
	Visits       int    `json:"visits"`
	TopRegion    string `json:"topRegion"`
}

// PanelStats is every KPI, series and ranking the dashboard panels read.
type PanelStats struct {
	TotalSites int `json:"totalSites"`
	SitesOk    int `json:"sitesOk"`
	SitesNok   int `json:"sitesNok"`
	SitesOkPct int `json:"sitesOkPct"`

	TotalBatteries      int                `json:"totalBatteries"`
	BatteriesOkPct      int                `json:"batteriesOkPct"`
	BatteryStates       BatteryStateCounts `json:"batteryStates"`
	BatteryAges         ObsolescenceCounts `json:"batteryAges"`
	Obsolescence        ObsolescenceCounts `json:"obsolescence"`
	Chemistry           ChemistryCounts    `json:"chemistry"`
	ChemistryByRegion   []RegionChemistry  `json:"chemistryByRegion"`
	ReplacementRequired int                `json:"replacementRequired"`

	TotalACs int          `json:"totalACs"`
	ACs      OkNok        `json:"acs"`
	ACsOkPct int          `json:"acsOkPct"`
	ACModels []NamedCount `json:"acModels"`

	Fan           OkNok               `json:"fan"`
	PLC           OkNok               `json:"plc"`
	Climatization ClimatizationCounts `json:"climatization"`

	GeneratorPresent int `json:"generatorPresent"`
	GeneratorAbsent  int `json:"generatorAbsent"`
	GeneratorPct     int `json:"generatorPct"`

	HousekeepingOk    int `json:"housekeepingOk"`
	HousekeepingNok   int `json:"housekeepingNok"`
	HousekeepingOkPct int `json:"housekeepingOkPct"`
	GroundingOk       int `json:"groundingOk"`
	GroundingNok      int `json:"groundingNok"`
	GroundingOkPct    int `json:"groundingOkPct"`

	Monthly []SeriesPoint `json:"monthly"`
	Daily   []SeriesPoint `json:"daily"`
	Regions []RegionCount `json:"regions"`

	TechnicianRanking []TechnicianStat `json:"technicianRanking"`
	TechnicianCount   int              `json:"technicianCount"`
	AvgPerTechnician  float64          `json:"avgPerTechnician"`

	Autonomy            AutonomyRollup     `json:"autonomy"`
	ObsolescenceRollups ObsolescenceRollup `json:"obsolescenceRollups"`
}

// Rows are the row-level datasets behind drill-downs and exports.
type Rows struct {
	Sites     []SiteInfo    `json:"sites"`
	Batteries []BatteryInfo `json:"batteries"`
	ACs       []ACInfo      `json:"acs"`
	Cabinets  []CabinetInfo `json:"cabinets"`
}

// Result is the output of one aggregation pass. Rows are already narrowed by
// the status filter; Stats never are.
type Result struct {
	Stats PanelStats `json:"stats"`
	Rows
}
