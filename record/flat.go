package record

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Flat is one wide row as stored by the field app. Repeated groups are encoded
// in the column name: gab{g}_bat{b}_estado, gab{g}_ac{a}_modelo and so on.
type Flat map[string]any

// Site-level column names.
const (
	FieldID             = "id"
	FieldSiteCode       = "site_code"
	FieldStateUF        = "estado_uf"
	FieldTechnicianID   = "tecnico_id"
	FieldTechnicianName = "tecnico_nome"
	FieldCreatedAt      = "created_at"
	FieldTotalCabinets  = "total_gabinetes"
	FieldGenerator      = "gmg_existe"
	FieldHousekeeping   = "torre_housekeeping"
	FieldGrounding      = "torre_aterramento"
)

// Per-cabinet, per-AC and per-battery column suffixes.
const (
	CabClimatization = "climatizacao"
	CabFanStatus     = "ventilador_status"
	CabPLCStatus     = "plc_status"

	ACModel  = "modelo"
	ACStatus = "status"

	BatType         = "tipo"
	BatManufacturer = "fabricante"
	BatCapacity     = "capacidade"
	BatManufactured = "data_fabricacao"
	BatState        = "estado"
)

// CabinetKey builds gab{g}_{field}.
func CabinetKey(g int, field string) string {
	return fmt.Sprintf("gab%d_%s", g, field)
}

// ACKey builds gab{g}_ac{a}_{field}.
func ACKey(g, a int, field string) string {
	return fmt.Sprintf("gab%d_ac%d_%s", g, a, field)
}

// BatteryKey builds gab{g}_bat{b}_{field}.
func BatteryKey(g, b int, field string) string {
	return fmt.Sprintf("gab%d_bat%d_%s", g, b, field)
}

// FromFlat normalizes a wide row into an InspectionRecord. Unknown or missing
// values become zero values; nothing here fails. Cabinet groups past the
// declared total are not read.
func FromFlat(f Flat) InspectionRecord {
	rec := InspectionRecord{
		ID:                 f.Str(FieldID),
		SiteCode:           f.Str(FieldSiteCode),
		StateUF:            strings.ToUpper(f.Str(FieldStateUF)),
		TechnicianID:       f.Str(FieldTechnicianID),
		TechnicianName:     f.Str(FieldTechnicianName),
		CreatedAt:          f.Time(FieldCreatedAt),
		TotalCabinets:      int(f.Num(FieldTotalCabinets)),
		HasGenerator:       f.Bool(FieldGenerator),
		HousekeepingStatus: ParseStatus(f.Str(FieldHousekeeping)),
		GroundingStatus:    ParseStatus(f.Str(FieldGrounding)),
	}

	declared := rec.TotalCabinets
	if declared > MaxCabinets {
		declared = MaxCabinets
	}
	for g := 1; g <= declared; g++ {
		cab := Cabinet{
			Climatization: ParseClimatization(f.Str(CabinetKey(g, CabClimatization))),
			FanStatus:     ParseStatus(f.Str(CabinetKey(g, CabFanStatus))),
			PLCStatus:     ParseStatus(f.Str(CabinetKey(g, CabPLCStatus))),
			ACUnits:       make([]ACUnit, 0, MaxACUnitsPerCabinet),
			Batteries:     make([]BatteryBank, 0, MaxBatteriesPerCab),
		}
		for a := 1; a <= MaxACUnitsPerCabinet; a++ {
			cab.ACUnits = append(cab.ACUnits, ACUnit{
				Model:  f.Str(ACKey(g, a, ACModel)),
				Status: ParseStatus(f.Str(ACKey(g, a, ACStatus))),
			})
		}
		for b := 1; b <= MaxBatteriesPerCab; b++ {
			cab.Batteries = append(cab.Batteries, BatteryBank{
				Type:            f.Str(BatteryKey(g, b, BatType)),
				Manufacturer:    f.Str(BatteryKey(g, b, BatManufacturer)),
				CapacityAh:      f.Num(BatteryKey(g, b, BatCapacity)),
				ManufactureDate: f.Str(BatteryKey(g, b, BatManufactured)),
				State:           f.Str(BatteryKey(g, b, BatState)),
			})
		}
		rec.Cabinets = append(rec.Cabinets, cab)
	}
	return rec
}

// ParseStatus maps checklist answers to a Status.
func ParseStatus(s string) Status {
	switch Fold(s) {
	case "ok", "conforme", "bom":
		return StatusOK
	case "nok", "não ok", "nao ok", "não conforme", "nao conforme", "ruim":
		return StatusNOK
	case "na", "n/a", "não se aplica", "nao se aplica":
		return StatusNA
	}
	return StatusUnset
}

// ParseClimatization maps the cabinet cooling answer.
func ParseClimatization(s string) Climatization {
	switch Fold(s) {
	case "":
		return ""
	case "ar_condicionado", "ar condicionado", "air_conditioner", "ac":
		return ClimatizationAirConditioner
	case "ventilacao", "ventilação", "ventilador", "fan":
		return ClimatizationFan
	}
	return ClimatizationNotApplicable
}

// Str returns the value at key as trimmed text.
func (f Flat) Str(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

var numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// Num returns the value at key as a number. Text such as "150Ah" or "100,5"
// yields its leading number; anything else yields 0.
func (f Flat) Num(key string) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		n, _ := v.Float64()
		return n
	case string:
		m := numberPattern.FindString(v)
		if m == "" {
			return 0
		}
		n, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Bool returns the value at key as a yes/no answer.
func (f Flat) Bool(key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		switch Fold(v) {
		case "sim", "s", "true", "yes", "y", "1", "x":
			return true
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time returns the value at key as a timestamp, or the zero time.
func (f Flat) Time(key string) time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return v
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
