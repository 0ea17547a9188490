package risk

import "shelterstat/record"

// BatteryState buckets the free-text physical state of a bank.
type BatteryState string

const (
	StateGood       BatteryState = "good"
	StateBulging    BatteryState = "bulging"
	StateLeaking    BatteryState = "leaking"
	StateCracked    BatteryState = "cracked"
	StateNoCharge   BatteryState = "noCharge"
	StateOther      BatteryState = "other"
	StateUnreported BatteryState = "unreported"
)

var stateKeywords = []struct {
	state    BatteryState
	keywords []string
}{
	{StateNoCharge, []string{"não segura", "nao segura", "sem carga", "não carrega", "nao carrega"}},
	{StateBulging, []string{"estufad", "inchad", "bulg"}},
	{StateLeaking, []string{"vazand", "vazament", "leak"}},
	{StateCracked, []string{"trincad", "rachad", "quebrad", "crack"}},
}

// ClassifyState buckets a physical-state answer by case-insensitive substring.
// Only an explicit OK/Bom counts as good; empty text is unreported.
func ClassifyState(raw string) BatteryState {
	if !record.Filled(raw) {
		return StateUnreported
	}
	for _, sk := range stateKeywords {
		for _, k := range sk.keywords {
			if record.ContainsFold(raw, k) {
				return sk.state
			}
		}
	}
	switch record.Fold(raw) {
	case "ok", "bom", "boa", "normal", "bom estado":
		return StateGood
	}
	return StateOther
}

// StateOK reports whether raw is the OK answer. Unreported states are not
// problems.
func StateOK(raw string) bool {
	s := ClassifyState(raw)
	return s == StateGood || s == StateUnreported
}

// NeedsReplacement is the "troca" rule: bulging, leaking or not holding
// charge, or critically obsolete.
func NeedsReplacement(rawState string, tier ObsolescenceTier) bool {
	switch ClassifyState(rawState) {
	case StateBulging, StateLeaking, StateNoCharge:
		return true
	}
	return tier == ObsolescenceCritical
}
