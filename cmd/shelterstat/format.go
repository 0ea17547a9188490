package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"shelterstat/analysis"
)

func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so YAML keys match the API field names.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q (use text, yaml or json)", format)
}

func printSummary(w io.Writer, s analysis.PanelStats) {
	fmt.Fprintf(w, "SITES: %d (ok %d, nok %d, %d%% ok)\n", s.TotalSites, s.SitesOk, s.SitesNok, s.SitesOkPct)
	fmt.Fprintf(w, "BATTERIES: %d (%d%% ok, %d need replacement)\n", s.TotalBatteries, s.BatteriesOkPct, s.ReplacementRequired)
	fmt.Fprintf(w, "  states: good %d, bulging %d, leaking %d, cracked %d, no charge %d, other %d, unreported %d\n",
		s.BatteryStates.Good, s.BatteryStates.Bulging, s.BatteryStates.Leaking, s.BatteryStates.Cracked,
		s.BatteryStates.NoCharge, s.BatteryStates.Other, s.BatteryStates.Unreported)
	fmt.Fprintf(w, "  obsolescence: ok %d, warning %d, critical %d\n",
		s.Obsolescence.Ok, s.Obsolescence.Warning, s.Obsolescence.Critical)
	fmt.Fprintf(w, "  chemistry: lead-acid %d, lithium %d\n", s.Chemistry.LeadAcid, s.Chemistry.Lithium)
	fmt.Fprintf(w, "ACS: %d (ok %d, nok %d, %d%% ok)\n", s.TotalACs, s.ACs.Ok, s.ACs.Nok, s.ACsOkPct)
	fmt.Fprintf(w, "GENERATOR: present %d, absent %d (%d%%)\n", s.GeneratorPresent, s.GeneratorAbsent, s.GeneratorPct)
	fmt.Fprintf(w, "HOUSEKEEPING: ok %d, nok %d   GROUNDING: ok %d, nok %d\n",
		s.HousekeepingOk, s.HousekeepingNok, s.GroundingOk, s.GroundingNok)

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AUTONOMY\tOK\tMEDIO\tALTO\tCRITICO\tSEM BANCO")
	for _, row := range []struct {
		name string
		c    analysis.AutonomyCounts
	}{{"cabinet", s.Autonomy.Gabinete}, {"site", s.Autonomy.Site}} {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", row.name, row.c.Ok, row.c.MedioRisco, row.c.AltoRisco, row.c.Critico, row.c.SemBanco)
	}
	tw.Flush()

	if len(s.Regions) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REGION\tSITES\tOK\tNOK")
		for _, r := range s.Regions {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", r.Region, r.Total, r.Ok, r.Nok)
		}
		tw.Flush()
	}

	if len(s.TechnicianRanking) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "TECHNICIANS: %d (avg %.1f visits)\n", s.TechnicianCount, s.AvgPerTechnician)
		for i, t := range s.TechnicianRanking {
			fmt.Fprintf(w, "  %d. %s - %d visits (%s)\n", i+1, t.Name, t.Visits, t.TopRegion)
		}
	}
}

func printProjection(w io.Writer, p analysis.Projection) {
	scope := p.Scope
	if scope == "" {
		scope = "all regions"
	}
	fmt.Fprintf(w, "%s (%s): %d %s\n\n", p.Selector, scope, p.Count, p.Kind)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	switch p.Kind {
	case analysis.KindSites:
		fmt.Fprintln(tw, "SITE\tUF\tTECHNICIAN\tDATE\tPROBLEMS")
		for _, s := range p.Sites {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", s.SiteCode, s.Region, s.TechnicianName, s.CreatedAt.Format("2006-01-02"), s.HasProblems)
		}
	case analysis.KindBatteries:
		fmt.Fprintln(tw, "SITE\tUF\tCAB\tBANK\tCHEMISTRY\tDATE\tAGE\tSTATE\tTIER")
		for _, b := range p.Batteries {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%d\t%s\t%s\n",
				b.SiteCode, b.Region, b.Cabinet, b.Bank, b.Chemistry, b.ManufactureDate, b.AgeYears, b.State, b.ObsolescenceTier)
		}
	case analysis.KindACs:
		fmt.Fprintln(tw, "SITE\tUF\tCAB\tUNIT\tMODEL\tSTATUS")
		for _, a := range p.ACs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", a.SiteCode, a.Region, a.Cabinet, a.Unit, a.Model, a.Status)
		}
	case analysis.KindCabinets:
		fmt.Fprintln(tw, "SITE\tUF\tCAB\tAH\tHOURS\tAUTONOMY\tOBSOLESCENCE\tGMG")
		for _, c := range p.Cabinets {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f\t%.2f\t%s\t%s\t%t\n",
				c.SiteCode, c.Region, c.Cabinet, c.TotalAh, c.AutonomyHours, c.AutonomyTier, c.ObsolescenceTier, c.HasGenerator)
		}
	}
}

func printSelectors() {
	for _, s := range analysis.Selectors() {
		fmt.Println(s)
	}
}
