package etl

import (
	"fmt"
	"math/rand"
	"time"

	"shelterstat/config"
	"shelterstat/record"
)

var (
	defaultTechnicians   = []string{"Ana Souza", "Bruno Lima", "Carla Mendes", "Diego Rocha", "Elisa Costa"}
	defaultManufacturers = []string{"Moura", "Heliar", "Fulguris", "BYD", "Unipower"}
	defaultACModels      = []string{"Springer 12000", "LG Dual 18000", "Carrier 24000", "Elgin 9000"}

	mockStates   = []string{"OK", "OK", "OK", "Bom", "Estufada", "Vazando", "Trincada", "Não segura carga", "", "oxidada"}
	mockStatuses = []string{"OK", "OK", "OK", "NOK", "NA"}
	mockUFs      = []string{"PA", "AM", "MA", "PI", "TO", "AP", "RR"}
)

// MockDataGenerator generates realistic wide inspection rows.
type MockDataGenerator struct {
	config *config.MockDataConfig
	rand   *rand.Rand
	now    time.Time
}

// NewMockDataGenerator creates a generator. A zero seed picks one from now.
func NewMockDataGenerator(cfg *config.MockDataConfig, now time.Time) *MockDataGenerator {
	seed := cfg.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}
	return &MockDataGenerator{
		config: cfg,
		rand:   rand.New(rand.NewSource(seed)),
		now:    now,
	}
}

func (m *MockDataGenerator) pick(list []string) string {
	return list[m.rand.Intn(len(list))]
}

func orDefault(list, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}

// Generate returns cfg.Records rows spread over the configured time range.
// Some rows carry stale cabinet groups past their declared total, as real
// edits in the field app leave behind.
func (m *MockDataGenerator) Generate() []record.Flat {
	n := m.config.Records
	if n <= 0 {
		n = 200
	}
	days := m.config.TimeRangeDays
	if days <= 0 {
		days = 90
	}
	techs := orDefault(m.config.Technicians, defaultTechnicians)

	rows := make([]record.Flat, 0, n)
	for i := 0; i < n; i++ {
		created := m.now.AddDate(0, 0, -m.rand.Intn(days)).
			Add(-time.Duration(m.rand.Intn(24*60)) * time.Minute)
		techIdx := m.rand.Intn(len(techs))
		total := 1 + m.rand.Intn(4)

		row := record.Flat{
			record.FieldID:             fmt.Sprintf("mock-%06d", i),
			record.FieldSiteCode:       fmt.Sprintf("%s%04d", m.pick(mockUFs), m.rand.Intn(3000)),
			record.FieldTechnicianID:   fmt.Sprintf("T%03d", techIdx+1),
			record.FieldTechnicianName: techs[techIdx],
			record.FieldCreatedAt:      created.UTC().Format(time.RFC3339),
			record.FieldTotalCabinets:  total,
			record.FieldGenerator:      m.rand.Intn(3) == 0,
			record.FieldHousekeeping:   m.pick(mockStatuses),
			record.FieldGrounding:      m.pick(mockStatuses),
		}
		row[record.FieldStateUF] = row.Str(record.FieldSiteCode)[:2]

		for g := 1; g <= total; g++ {
			m.fillCabinet(row, g)
		}
		if total < record.MaxCabinets && m.rand.Intn(10) == 0 {
			m.fillCabinet(row, total+1)
		}
		rows = append(rows, row)
	}
	return rows
}

func (m *MockDataGenerator) fillCabinet(row record.Flat, g int) {
	manufacturers := orDefault(m.config.Manufacturers, defaultManufacturers)
	models := orDefault(m.config.ACModels, defaultACModels)

	clim := m.pick([]string{"ar_condicionado", "ventilacao", "na"})
	row[record.CabinetKey(g, record.CabClimatization)] = clim
	row[record.CabinetKey(g, record.CabFanStatus)] = m.pick(mockStatuses)
	row[record.CabinetKey(g, record.CabPLCStatus)] = m.pick(mockStatuses)

	if clim == "ar_condicionado" {
		units := 1 + m.rand.Intn(2)
		for a := 1; a <= units; a++ {
			row[record.ACKey(g, a, record.ACModel)] = m.pick(models)
			row[record.ACKey(g, a, record.ACStatus)] = m.pick(mockStatuses[:4])
		}
	}

	banks := m.rand.Intn(4)
	for b := 1; b <= banks; b++ {
		lithium := m.rand.Intn(4) == 0
		chem := "Chumbo-ácido"
		if lithium {
			chem = "Lítio"
		}
		year := m.now.Year() - m.rand.Intn(12)
		var date string
		switch m.rand.Intn(3) {
		case 0:
			date = fmt.Sprintf("%d-%02d-%02d", year, 1+m.rand.Intn(12), 1+m.rand.Intn(28))
		case 1:
			date = fmt.Sprintf("%02d/%d", 1+m.rand.Intn(12), year)
		default:
			date = fmt.Sprintf("%d", year)
		}
		row[record.BatteryKey(g, b, record.BatType)] = chem
		row[record.BatteryKey(g, b, record.BatManufacturer)] = m.pick(manufacturers)
		row[record.BatteryKey(g, b, record.BatCapacity)] = fmt.Sprintf("%dAh", []int{100, 150, 200}[m.rand.Intn(3)])
		row[record.BatteryKey(g, b, record.BatManufactured)] = date
		row[record.BatteryKey(g, b, record.BatState)] = m.pick(mockStates)
	}
}
