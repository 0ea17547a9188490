// Package record defines the normalized shape of one shelter inspection visit
// and the adapter that builds it from the flat field-app row.
package record

import "time"

// Cardinality limits of the inspection form.
const (
	MaxCabinets          = 7
	MaxBatteriesPerCab   = 6
	MaxACUnitsPerCabinet = 4
)

// Status is the OK/NOK/NA answer used across the checklist.
type Status string

const (
	StatusOK  Status = "OK"
	StatusNOK Status = "NOK"
	StatusNA  Status = "NA"
	// StatusUnset means the field was not filled in.
	StatusUnset Status = ""
)

// Climatization is the cooling method of a cabinet.
type Climatization string

const (
	ClimatizationAirConditioner Climatization = "AIR_CONDITIONER"
	ClimatizationFan            Climatization = "FAN"
	ClimatizationNotApplicable  Climatization = "NOT_APPLICABLE"
)

// Chemistry is the battery technology family.
type Chemistry string

const (
	ChemistryLeadAcid Chemistry = "LEAD_ACID"
	ChemistryLithium  Chemistry = "LITHIUM"
	ChemistryNone     Chemistry = "NA"
)

// Regions is the fixed set of state codes (UF) a site can belong to.
var Regions = []string{
	"AC", "AL", "AM", "AP", "BA", "CE", "DF", "ES", "GO",
	"MA", "MG", "MS", "MT", "PA", "PB", "PE", "PI", "PR",
	"RJ", "RN", "RO", "RR", "RS", "SC", "SE", "SP", "TO",
}

// ValidRegion reports whether code is one of Regions.
func ValidRegion(code string) bool {
	for _, r := range Regions {
		if r == code {
			return true
		}
	}
	return false
}

// InspectionRecord is one physical site visit.
type InspectionRecord struct {
	ID             string    `json:"id"`
	SiteCode       string    `json:"siteCode"`
	StateUF        string    `json:"stateUf"`
	TechnicianID   string    `json:"technicianId"`
	TechnicianName string    `json:"technicianName"`
	CreatedAt      time.Time `json:"createdAt"`
	TotalCabinets  int       `json:"totalCabinets"`
	Cabinets       []Cabinet `json:"cabinets"`

	HasGenerator       bool   `json:"hasGenerator"`
	HousekeepingStatus Status `json:"housekeepingStatus"`
	GroundingStatus    Status `json:"groundingStatus"`
}

// DeclaredCabinets returns the cabinets within the declared count. Slots past
// TotalCabinets may hold stale data and are never returned.
func (r *InspectionRecord) DeclaredCabinets() []Cabinet {
	n := r.TotalCabinets
	if n > MaxCabinets {
		n = MaxCabinets
	}
	if n > len(r.Cabinets) {
		n = len(r.Cabinets)
	}
	if n <= 0 {
		return nil
	}
	return r.Cabinets[:n]
}

// Cabinet is one equipment rack at the site.
type Cabinet struct {
	Climatization Climatization `json:"climatization"`
	FanStatus     Status        `json:"fanStatus"`
	PLCStatus     Status        `json:"plcStatus"`
	ACUnits       []ACUnit      `json:"acUnits"`
	Batteries     []BatteryBank `json:"batteries"`
}

// ACUnit is one air-conditioning unit slot.
type ACUnit struct {
	Model  string `json:"model"`
	Status Status `json:"status"`
}

// Present reports whether the slot holds a real unit.
func (u ACUnit) Present() bool {
	return Filled(u.Model)
}

// BatteryBank is one battery group slot.
type BatteryBank struct {
	Type            string  `json:"type"`
	Manufacturer    string  `json:"manufacturer"`
	CapacityAh      float64 `json:"capacityAh"`
	ManufactureDate string  `json:"manufactureDate"`
	State           string  `json:"state"`
}

// Chemistry resolves the free-text type. Anything not lithium is lead-acid.
func (b BatteryBank) Chemistry() Chemistry {
	if !Filled(b.Type) {
		return ChemistryNone
	}
	for _, k := range []string{"litio", "lítio", "lithium", "li-ion", "lifepo"} {
		if ContainsFold(b.Type, k) {
			return ChemistryLithium
		}
	}
	return ChemistryLeadAcid
}

// Qualifies reports whether the bank counts as a real battery: a chemistry
// other than NA and a manufacturer.
func (b BatteryBank) Qualifies() bool {
	return b.Chemistry() != ChemistryNone && Filled(b.Manufacturer)
}
