package risk

import "shelterstat/record"

// DefaultLoadCurrentA is the load assumed when turning bank capacity into
// backup hours.
const DefaultLoadCurrentA = 30.0

// ObsolescenceTier is the age-based risk of a battery or cabinet.
type ObsolescenceTier string

const (
	ObsolescenceOK       ObsolescenceTier = "ok"
	ObsolescenceWarning  ObsolescenceTier = "warning"
	ObsolescenceCritical ObsolescenceTier = "critical"
)

// AutonomyTier is the backup-time risk of a cabinet or site.
type AutonomyTier string

const (
	AutonomyOK         AutonomyTier = "ok"
	AutonomyMedioRisco AutonomyTier = "medioRisco"
	AutonomyAltoRisco  AutonomyTier = "altoRisco"
	AutonomyCritico    AutonomyTier = "critico"
)

// Severity ordinals used by the worst-wins rollups. warning shares the rank of
// altoRisco; medioRisco sits between ok and both.
var (
	obsolescenceRank = map[ObsolescenceTier]int{
		ObsolescenceOK:       0,
		ObsolescenceWarning:  2,
		ObsolescenceCritical: 3,
	}
	autonomyRank = map[AutonomyTier]int{
		AutonomyOK:         0,
		AutonomyMedioRisco: 1,
		AutonomyAltoRisco:  2,
		AutonomyCritico:    3,
	}
)

// Severity returns the ordinal of t; unknown tiers rank below ok.
func (t ObsolescenceTier) Severity() int {
	if r, ok := obsolescenceRank[t]; ok {
		return r
	}
	return -1
}

// Severity returns the ordinal of t; unknown tiers rank below ok.
func (t AutonomyTier) Severity() int {
	if r, ok := autonomyRank[t]; ok {
		return r
	}
	return -1
}

// AgeThresholds are the first ages at which a battery turns warning and
// critical.
type AgeThresholds struct {
	Warning  int
	Critical int
}

var (
	LeadAcidThresholds = AgeThresholds{Warning: 2, Critical: 3}
	LithiumThresholds  = AgeThresholds{Warning: 5, Critical: 10}
	// GenericThresholds back the chemistry-blind badge used by the cabinet
	// and site rollups and by the age histogram.
	GenericThresholds = AgeThresholds{Warning: 5, Critical: 8}
)

// Classify maps an age onto t.
func (t AgeThresholds) Classify(age int) ObsolescenceTier {
	switch {
	case age >= t.Critical:
		return ObsolescenceCritical
	case age >= t.Warning:
		return ObsolescenceWarning
	default:
		return ObsolescenceOK
	}
}

// Obsolescence classifies a single battery by age and chemistry.
func Obsolescence(age int, chem record.Chemistry) ObsolescenceTier {
	if chem == record.ChemistryLithium {
		return LithiumThresholds.Classify(age)
	}
	return LeadAcidThresholds.Classify(age)
}

// GenericObsolescence is the chemistry-blind 5/8 year badge.
func GenericObsolescence(age int) ObsolescenceTier {
	return GenericThresholds.Classify(age)
}

// AutonomyHours converts bank capacity to hours at loadA amperes.
func AutonomyHours(totalAh, loadA float64) float64 {
	if loadA <= 0 || totalAh <= 0 {
		return 0
	}
	return totalAh / loadA
}

// Autonomy classifies backup hours. With a generator on site the medioRisco
// band does not exist and the ok threshold drops to 4h.
func Autonomy(hours float64, hasGenerator bool) AutonomyTier {
	if hasGenerator {
		switch {
		case hours >= 4:
			return AutonomyOK
		case hours >= 2:
			return AutonomyAltoRisco
		default:
			return AutonomyCritico
		}
	}
	switch {
	case hours >= 6:
		return AutonomyOK
	case hours >= 4:
		return AutonomyMedioRisco
	case hours >= 2:
		return AutonomyAltoRisco
	default:
		return AutonomyCritico
	}
}

// WorstObsolescence returns the most severe tier. ok is false when tiers is
// empty.
func WorstObsolescence(tiers ...ObsolescenceTier) (ObsolescenceTier, bool) {
	if len(tiers) == 0 {
		return "", false
	}
	worst := tiers[0]
	for _, t := range tiers[1:] {
		if t.Severity() > worst.Severity() {
			worst = t
		}
	}
	return worst, true
}

// WorstAutonomy returns the most severe tier. ok is false when tiers is empty.
func WorstAutonomy(tiers ...AutonomyTier) (AutonomyTier, bool) {
	if len(tiers) == 0 {
		return "", false
	}
	worst := tiers[0]
	for _, t := range tiers[1:] {
		if t.Severity() > worst.Severity() {
			worst = t
		}
	}
	return worst, true
}
