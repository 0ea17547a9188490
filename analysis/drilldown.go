package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"shelterstat/record"
	"shelterstat/risk"
)

// ErrUnknownSelector is returned for a drill-down name outside the vocabulary.
var ErrUnknownSelector = errors.New("unknown drill-down selector")

// RowKind names which row list a projection carries.
type RowKind string

const (
	KindSites     RowKind = "sites"
	KindBatteries RowKind = "batteries"
	KindACs       RowKind = "acs"
	KindCabinets  RowKind = "cabinets"
)

// Projection is the row subset behind one clicked KPI.
type Projection struct {
	Selector  string        `json:"selector"`
	Scope     string        `json:"scope,omitempty"`
	Kind      RowKind       `json:"kind"`
	Sites     []SiteInfo    `json:"sites,omitempty"`
	Batteries []BatteryInfo `json:"batteries,omitempty"`
	ACs       []ACInfo      `json:"acs,omitempty"`
	Cabinets  []CabinetInfo `json:"cabinets,omitempty"`
	Count     int           `json:"count"`
}

type (
	sitePredicate    func(SiteInfo) bool
	batteryPredicate func(BatteryInfo) bool
	acPredicate      func(ACInfo) bool
	cabinetPredicate func(CabinetInfo) bool
)

// inScope matches a row region against an optional scope. Rows without a
// region fall under the NoRegion label used by the distributions.
func inScope(region, scope string) bool {
	if scope == "" || scope == AllRegions {
		return true
	}
	return regionLabel(region) == scope
}

// normalizeScope upper-cases a region scope to match stored UF codes.
func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if strings.EqualFold(scope, AllRegions) {
		return AllRegions
	}
	return strings.ToUpper(scope)
}

func stateIs(want risk.BatteryState) batteryPredicate {
	return func(b BatteryInfo) bool { return risk.ClassifyState(b.State) == want }
}

func obsolescenceIs(want risk.ObsolescenceTier) batteryPredicate {
	return func(b BatteryInfo) bool { return b.ObsolescenceTier == want }
}

func ageBadgeIs(want risk.ObsolescenceTier) batteryPredicate {
	return func(b BatteryInfo) bool { return risk.GenericObsolescence(b.AgeYears) == want }
}

func chemistryIs(chem record.Chemistry) batteryPredicate {
	return func(b BatteryInfo) bool { return b.Chemistry == chem }
}

// needsReplacement is recomputed from the raw state and tier on every call.
func needsReplacement(b BatteryInfo) bool {
	return risk.NeedsReplacement(b.State, b.ObsolescenceTier)
}

func siteAutonomyIs(want risk.AutonomyTier) sitePredicate {
	return func(s SiteInfo) bool { return s.AutonomyTier == want }
}

func siteObsolescenceIs(want risk.ObsolescenceTier) sitePredicate {
	return func(s SiteInfo) bool { return s.ObsolescenceTier == want }
}

func cabinetAutonomyIs(want risk.AutonomyTier) cabinetPredicate {
	return func(c CabinetInfo) bool { return c.AutonomyTier == want }
}

func cabinetObsolescenceIs(want risk.ObsolescenceTier) cabinetPredicate {
	return func(c CabinetInfo) bool { return c.ObsolescenceTier == want }
}

func allSites(SiteInfo) bool { return true }

func allBatteries(BatteryInfo) bool { return true }

func allACs(ACInfo) bool { return true }

var siteSelectors = map[string]sitePredicate{
	"sites-all":        allSites,
	"sites-ok":         func(s SiteInfo) bool { return !s.HasProblems },
	"sites-nok":        func(s SiteInfo) bool { return s.HasProblems },
	"gmg-sim":          func(s SiteInfo) bool { return s.HasGenerator },
	"gmg-nao":          func(s SiteInfo) bool { return !s.HasGenerator },
	"housekeeping-nok": func(s SiteInfo) bool { return s.Housekeeping == record.StatusNOK },
	"aterramento-nok":  func(s SiteInfo) bool { return s.Grounding == record.StatusNOK },
	"uf":               allSites,

	"autonomy-site-ok":         siteAutonomyIs(risk.AutonomyOK),
	"autonomy-site-medioRisco": siteAutonomyIs(risk.AutonomyMedioRisco),
	"autonomy-site-altoRisco":  siteAutonomyIs(risk.AutonomyAltoRisco),
	"autonomy-site-critico":    siteAutonomyIs(risk.AutonomyCritico),
	"autonomy-site-semBanco":   siteAutonomyIs(""),

	"obsolescencia-site-ok":       siteObsolescenceIs(risk.ObsolescenceOK),
	"obsolescencia-site-warning":  siteObsolescenceIs(risk.ObsolescenceWarning),
	"obsolescencia-site-critical": siteObsolescenceIs(risk.ObsolescenceCritical),
	"obsolescencia-site-semBanco": siteObsolescenceIs(""),
}

var batterySelectors = map[string]batteryPredicate{
	"baterias-all":      allBatteries,
	"bateria-ok":        BatteryInfo.StateOK,
	"bateria-estufada":  stateIs(risk.StateBulging),
	"bateria-vazando":   stateIs(risk.StateLeaking),
	"bateria-trincada":  stateIs(risk.StateCracked),
	"bateria-sem-carga": stateIs(risk.StateNoCharge),
	"bateria-outros":    stateIs(risk.StateOther),

	"obsolescencia-ok":       obsolescenceIs(risk.ObsolescenceOK),
	"obsolescencia-warning":  obsolescenceIs(risk.ObsolescenceWarning),
	"obsolescencia-critical": obsolescenceIs(risk.ObsolescenceCritical),

	"idade-ok":       ageBadgeIs(risk.ObsolescenceOK),
	"idade-warning":  ageBadgeIs(risk.ObsolescenceWarning),
	"idade-critical": ageBadgeIs(risk.ObsolescenceCritical),

	"chumbo-uf": chemistryIs(record.ChemistryLeadAcid),
	"litio-uf":  chemistryIs(record.ChemistryLithium),
	"troca-all": needsReplacement,
	"troca-uf":  needsReplacement,
}

var acSelectors = map[string]acPredicate{
	"ac-all": allACs,
	"ac-ok":  func(a ACInfo) bool { return a.Status == record.StatusOK },
	"ac-nok": func(a ACInfo) bool { return a.Status == record.StatusNOK },
}

var cabinetSelectors = map[string]cabinetPredicate{
	"autonomy-ok":         cabinetAutonomyIs(risk.AutonomyOK),
	"autonomy-medioRisco": cabinetAutonomyIs(risk.AutonomyMedioRisco),
	"autonomy-altoRisco":  cabinetAutonomyIs(risk.AutonomyAltoRisco),
	"autonomy-critico":    cabinetAutonomyIs(risk.AutonomyCritico),

	"obsolescencia-gabinete-ok":       cabinetObsolescenceIs(risk.ObsolescenceOK),
	"obsolescencia-gabinete-warning":  cabinetObsolescenceIs(risk.ObsolescenceWarning),
	"obsolescencia-gabinete-critical": cabinetObsolescenceIs(risk.ObsolescenceCritical),
}

// ParseSelector splits "name:scope" into its parts.
func ParseSelector(s string) (name, scope string) {
	name, scope, _ = strings.Cut(strings.TrimSpace(s), ":")
	return strings.TrimSpace(name), strings.TrimSpace(scope)
}

// Selectors lists the drill-down vocabulary in sorted order.
func Selectors() []string {
	var out []string
	for k := range siteSelectors {
		out = append(out, k)
	}
	for k := range batterySelectors {
		out = append(out, k)
	}
	for k := range acSelectors {
		out = append(out, k)
	}
	for k := range cabinetSelectors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Project returns the rows behind selector. A selector may carry its own
// region scope as "chumbo-uf:PA"; a non-empty regionScope argument takes
// precedence. The scope narrows every row kind. Rows come from res as-is, so a
// status filter already applied to res carries through.
func Project(res *Result, selector, regionScope string) (Projection, error) {
	name, scope := ParseSelector(selector)
	if regionScope != "" {
		scope = regionScope
	}
	scope = normalizeScope(scope)
	p := Projection{Selector: name, Scope: scope}
	if res == nil {
		res = &Result{}
	}

	if pred, ok := siteSelectors[name]; ok {
		p.Kind = KindSites
		p.Sites = []SiteInfo{}
		for _, s := range res.Sites {
			if inScope(s.Region, scope) && pred(s) {
				p.Sites = append(p.Sites, s)
			}
		}
		p.Count = len(p.Sites)
		return p, nil
	}
	if pred, ok := batterySelectors[name]; ok {
		p.Kind = KindBatteries
		p.Batteries = []BatteryInfo{}
		for _, b := range res.Batteries {
			if inScope(b.Region, scope) && pred(b) {
				p.Batteries = append(p.Batteries, b)
			}
		}
		p.Count = len(p.Batteries)
		return p, nil
	}
	if pred, ok := acSelectors[name]; ok {
		p.Kind = KindACs
		p.ACs = []ACInfo{}
		for _, a := range res.ACs {
			if inScope(a.Region, scope) && pred(a) {
				p.ACs = append(p.ACs, a)
			}
		}
		p.Count = len(p.ACs)
		return p, nil
	}
	if pred, ok := cabinetSelectors[name]; ok {
		p.Kind = KindCabinets
		p.Cabinets = []CabinetInfo{}
		for _, c := range res.Cabinets {
			if inScope(c.Region, scope) && pred(c) {
				p.Cabinets = append(p.Cabinets, c)
			}
		}
		p.Count = len(p.Cabinets)
		return p, nil
	}
	return Projection{}, fmt.Errorf("%w: %q", ErrUnknownSelector, name)
}

// KnownSelector reports whether name is in the drill-down vocabulary.
func KnownSelector(name string) bool {
	if _, ok := siteSelectors[name]; ok {
		return true
	}
	if _, ok := batterySelectors[name]; ok {
		return true
	}
	if _, ok := acSelectors[name]; ok {
		return true
	}
	_, ok := cabinetSelectors[name]
	return ok
}
