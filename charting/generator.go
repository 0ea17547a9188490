package charting

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"shelterstat/analysis"
	"shelterstat/risk"
)

// ErrNoData is returned when a chart would have nothing to draw.
var ErrNoData = errors.New("no data for chart")

var (
	colorOK       = drawing.ColorFromHex("2ecc71")
	colorMedio    = drawing.ColorFromHex("f1c40f")
	colorAlto     = drawing.ColorFromHex("e67e22")
	colorCritico  = drawing.ColorFromHex("e74c3c")
	colorSemBanco = drawing.ColorFromHex("95a5a6")
	colorBar      = drawing.ColorFromHex("3498db")
)

// Generator handles chart image creation
type Generator struct {
	Width  int
	Height int
}

func NewGenerator() *Generator {
	return &Generator{Width: 800, Height: 400}
}

func (g *Generator) bars(title string, points []analysis.SeriesPoint) ([]byte, error) {
	maxV := 0
	values := make([]chart.Value, 0, len(points))
	for _, p := range points {
		if p.Count > maxV {
			maxV = p.Count
		}
		values = append(values, chart.Value{
			Label: p.Label,
			Value: float64(p.Count),
			Style: chart.Style{FillColor: colorBar, StrokeColor: colorBar},
		})
	}
	if maxV == 0 {
		return nil, ErrNoData
	}

	graph := chart.BarChart{
		Title:  title,
		Width:  g.Width,
		Height: g.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		BarWidth: barWidth(g.Width, len(values)),
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: float64(maxV) * 1.1},
		},
		Bars: values,
	}

	buffer := bytes.NewBuffer([]byte{})
	err := graph.Render(chart.PNG, buffer)
	return buffer.Bytes(), err
}

func barWidth(width, n int) int {
	if n == 0 {
		return 40
	}
	w := (width - 100) / (n * 2)
	switch {
	case w < 8:
		return 8
	case w > 60:
		return 60
	}
	return w
}

// GenerateMonthlyTrend creates a PNG bar chart of visits per month.
func (g *Generator) GenerateMonthlyTrend(points []analysis.SeriesPoint) ([]byte, error) {
	return g.bars("Visits per month", points)
}

// GenerateDailyTrend creates a PNG bar chart of the recent daily visits.
func (g *Generator) GenerateDailyTrend(points []analysis.SeriesPoint) ([]byte, error) {
	return g.bars("Visits per day", points)
}

// GenerateRegionBars creates a stacked OK/NOK bar per region.
func (g *Generator) GenerateRegionBars(regions []analysis.RegionCount) ([]byte, error) {
	var stacked []chart.StackedBar
	for _, rc := range regions {
		if rc.Total == 0 {
			continue
		}
		stacked = append(stacked, chart.StackedBar{
			Name: rc.Region,
			Values: []chart.Value{
				{Label: "OK", Value: float64(rc.Ok), Style: chart.Style{FillColor: colorOK, StrokeColor: colorOK}},
				{Label: "NOK", Value: float64(rc.Nok), Style: chart.Style{FillColor: colorCritico, StrokeColor: colorCritico}},
			},
		})
	}
	if len(stacked) == 0 {
		return nil, ErrNoData
	}

	graph := chart.StackedBarChart{
		Title:  "Sites per region",
		Width:  g.Width,
		Height: g.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		BarSpacing: 10,
		Bars:       stacked,
	}

	buffer := bytes.NewBuffer([]byte{})
	err := graph.Render(chart.PNG, buffer)
	return buffer.Bytes(), err
}

// GenerateAutonomyPie creates a PNG pie of autonomy tiers for one unit of
// analysis. Empty slices are left out.
func (g *Generator) GenerateAutonomyPie(title string, c analysis.AutonomyCounts) ([]byte, error) {
	slices := []struct {
		label string
		n     int
		color drawing.Color
	}{
		{"OK", c.Ok, colorOK},
		{"Medio risco", c.MedioRisco, colorMedio},
		{"Alto risco", c.AltoRisco, colorAlto},
		{"Critico", c.Critico, colorCritico},
		{"Sem banco", c.SemBanco, colorSemBanco},
	}

	var values []chart.Value
	for _, s := range slices {
		if s.n == 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%d)", s.label, s.n),
			Value: float64(s.n),
			Style: chart.Style{FillColor: s.color},
		})
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	graph := chart.PieChart{
		Title:  title,
		Width:  g.Height,
		Height: g.Height,
		Values: values,
	}

	buffer := bytes.NewBuffer([]byte{})
	err := graph.Render(chart.PNG, buffer)
	return buffer.Bytes(), err
}

// HeatmapCell is one region x tier count.
type HeatmapCell struct {
	Region string
	Tier   string
	Count  int
}

// RiskCells counts cabinets per region and autonomy tier.
func RiskCells(cabinets []analysis.CabinetInfo) []HeatmapCell {
	counts := make(map[[2]string]int)
	for _, c := range cabinets {
		counts[[2]string{c.Region, string(c.AutonomyTier)}]++
	}
	cells := make([]HeatmapCell, 0, len(counts))
	for k, n := range counts {
		cells = append(cells, HeatmapCell{Region: k[0], Tier: k[1], Count: n})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Region != cells[j].Region {
			return cells[i].Region < cells[j].Region
		}
		return cells[i].Tier < cells[j].Tier
	})
	return cells
}

var heatmapTiers = []string{
	string(risk.AutonomyOK),
	string(risk.AutonomyMedioRisco),
	string(risk.AutonomyAltoRisco),
	string(risk.AutonomyCritico),
}

// GenerateRiskHeatmap creates an SVG grid with one row per region and one
// column per autonomy tier. go-chart has no heatmap, so the grid is drawn
// directly.
func (g *Generator) GenerateRiskHeatmap(cells []HeatmapCell) ([]byte, error) {
	regionSet := make(map[string]bool)
	maxCount := 0
	for _, c := range cells {
		regionSet[c.Region] = true
		if c.Count > maxCount {
			maxCount = c.Count
		}
	}
	if len(regionSet) == 0 || maxCount == 0 {
		return nil, ErrNoData
	}
	regions := make([]string, 0, len(regionSet))
	for r := range regionSet {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	index := make(map[[2]string]int, len(cells))
	for _, c := range cells {
		index[[2]string{c.Region, c.Tier}] = c.Count
	}

	const (
		padLeft = 60
		padTop  = 40
		cellW   = 110
		cellH   = 24
	)
	width := padLeft + cellW*len(heatmapTiers) + 20
	height := padTop + cellH*len(regions) + 20

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`, width, height)
	buf.WriteString(`<rect width="100%" height="100%" fill="white"/>`)

	for xi, tier := range heatmapTiers {
		fmt.Fprintf(&buf, `<text x="%d" y="%d" font-size="12" text-anchor="middle">%s</text>`,
			padLeft+xi*cellW+cellW/2, padTop-10, tier)
	}
	for yi, region := range regions {
		y := padTop + yi*cellH
		fmt.Fprintf(&buf, `<text x="%d" y="%d" font-size="12" text-anchor="end">%s</text>`,
			padLeft-8, y+cellH/2+4, html.EscapeString(region))
		for xi, tier := range heatmapTiers {
			n := index[[2]string{region, tier}]
			// White to red by share of the busiest cell.
			gb := 255 - 255*n/maxCount
			fmt.Fprintf(&buf, `<rect x="%d" y="%d" width="%d" height="%d" fill="rgb(255,%d,%d)" stroke="#eee"/>`,
				padLeft+xi*cellW, y, cellW, cellH, gb, gb)
			if n > 0 {
				fmt.Fprintf(&buf, `<text x="%d" y="%d" font-size="11" text-anchor="middle">%d</text>`,
					padLeft+xi*cellW+cellW/2, y+cellH/2+4, n)
			}
		}
	}

	buf.WriteString("</svg>")
	return buf.Bytes(), nil
}

// Bundle renders every chart a dashboard supports. Charts without data are
// skipped; the map is keyed by file name.
func (g *Generator) Bundle(stats analysis.PanelStats, rows analysis.Rows) (map[string][]byte, error) {
	out := make(map[string][]byte)
	add := func(name string, data []byte, err error) error {
		if errors.Is(err, ErrNoData) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		out[name] = data
		return nil
	}

	steps := []func() error{
		func() error { b, err := g.GenerateMonthlyTrend(stats.Monthly); return add("monthly_trend.png", b, err) },
		func() error { b, err := g.GenerateDailyTrend(stats.Daily); return add("daily_trend.png", b, err) },
		func() error { b, err := g.GenerateRegionBars(stats.Regions); return add("regions.png", b, err) },
		func() error {
			b, err := g.GenerateAutonomyPie("Autonomy per cabinet", stats.Autonomy.Gabinete)
			return add("autonomy_cabinet.png", b, err)
		},
		func() error {
			b, err := g.GenerateAutonomyPie("Autonomy per site", stats.Autonomy.Site)
			return add("autonomy_site.png", b, err)
		},
		func() error { b, err := g.GenerateRiskHeatmap(RiskCells(rows.Cabinets)); return add("risk_heatmap.svg", b, err) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return out, err
		}
	}
	return out, nil
}
