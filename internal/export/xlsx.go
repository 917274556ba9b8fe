// Package export writes simulation results as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pefman/w40k-mathhammer/internal/sim"
)

const (
	sheetSummary      = "Summary"
	sheetDistribution = "Distribution"
	sheetWeapons      = "Weapons"
	sheetRanking      = "Ranking"
)

// RunXLSX writes a single run: headline statistics, the damage distribution
// with P(damage >= d), and the per-weapon breakdown.
func RunXLSX(w io.Writer, label string, res *sim.Result) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return err
	}
	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	s := res.Summary()
	def := res.Defender
	rows := [][2]any{
		{"Label", label},
		{"Defender", def.Name},
		{"Phase", string(res.Phase)},
		{"Trials", s.Trials},
		{"Seed", fmt.Sprintf("%d", res.Seed)},
		{"Mean damage", s.Mean},
		{"Std dev", s.StdDev},
		{"Min", s.Min},
		{"Median", s.Median},
		{"90th percentile", s.P90},
		{"Max", s.Max},
		{"Kill probability", s.KillProbability},
		{"Expected survivors", s.ExpectedSurvivors},
		{"Damage efficiency", s.DamageEfficiency},
	}
	for i, r := range rows {
		f.SetCellValue(sheetSummary, fmt.Sprintf("A%d", i+1), r[0])
		f.SetCellValue(sheetSummary, fmt.Sprintf("B%d", i+1), r[1])
	}
	_ = f.SetCellStyle(sheetSummary, "A1", fmt.Sprintf("A%d", len(rows)), styles.header)
	if err := f.SetColWidth(sheetSummary, "A", "A", 22); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetDistribution); err != nil {
		return err
	}
	header(f, sheetDistribution, styles, "Damage", "Trials", "P(>= damage)")
	for i, t := range s.AtLeast {
		row := i + 2
		f.SetCellValue(sheetDistribution, fmt.Sprintf("A%d", row), t.Damage)
		f.SetCellValue(sheetDistribution, fmt.Sprintf("B%d", row), s.Histogram[t.Damage])
		f.SetCellValue(sheetDistribution, fmt.Sprintf("C%d", row), t.Probability)
		_ = f.SetCellStyle(sheetDistribution, fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), styles.percent)
	}

	if _, err := f.NewSheet(sheetWeapons); err != nil {
		return err
	}
	header(f, sheetWeapons, styles, "Weapon", "Attacks", "Hits", "Wounds", "Failed saves", "Mortal wounds", "Damage", "Hit rate", "Wound rate", "Unsaved rate")
	for i, ws := range s.Weapons {
		row := i + 2
		name := ws.Name
		if name == "" {
			name = ws.WeaponID
		}
		vals := []any{name, ws.MeanAttacks, ws.MeanHits, ws.MeanWounds, ws.MeanFailedSaves, ws.MeanMortals, ws.MeanDamage, ws.HitRate, ws.WoundRate, ws.UnsavedRate}
		if err := f.SetSheetRow(sheetWeapons, fmt.Sprintf("A%d", row), &vals); err != nil {
			return err
		}
		_ = f.SetCellStyle(sheetWeapons, fmt.Sprintf("H%d", row), fmt.Sprintf("J%d", row), styles.percent)
	}
	if err := f.SetColWidth(sheetWeapons, "A", "A", 24); err != nil {
		return err
	}

	return f.Write(w)
}

// ComparisonXLSX writes the ranked weapon table.
func ComparisonXLSX(w io.Writer, label string, cmp *sim.Comparison) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetRanking); err != nil {
		return err
	}
	styles, err := newStyles(f)
	if err != nil {
		return err
	}
	f.SetCellValue(sheetRanking, "A1", label)
	_ = f.MergeCell(sheetRanking, "A1", "G1")
	_ = f.SetCellStyle(sheetRanking, "A1", "G1", styles.title)

	cols := []string{"Rank", "Weapon", "Unit", "Mean damage", "Std dev", "Median", "Kill probability"}
	for i, c := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(sheetRanking, cell, c)
	}
	_ = f.SetCellStyle(sheetRanking, "A2", "G2", styles.header)

	for i, e := range cmp.Entries {
		row := i + 3
		vals := []any{e.Rank, e.WeaponName, e.UnitID, e.MeanDamage, 0.0, 0, 0.0}
		if e.Result != nil {
			s := e.Result.Summary()
			vals[4], vals[5], vals[6] = s.StdDev, s.Median, s.KillProbability
		}
		if err := f.SetSheetRow(sheetRanking, fmt.Sprintf("A%d", row), &vals); err != nil {
			return err
		}
		_ = f.SetCellStyle(sheetRanking, fmt.Sprintf("G%d", row), fmt.Sprintf("G%d", row), styles.percent)
	}
	if err := f.SetColWidth(sheetRanking, "B", "C", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetRanking, "D", "G", 16); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteRunFile saves RunXLSX under dir and returns the file path.
func WriteRunFile(dir, label string, res *sim.Result) (string, error) {
	return writeFile(dir, label, func(w io.Writer) error { return RunXLSX(w, label, res) })
}

// WriteComparisonFile saves ComparisonXLSX under dir and returns the file path.
func WriteComparisonFile(dir, label string, cmp *sim.Comparison) (string, error) {
	return writeFile(dir, label, func(w io.Writer) error { return ComparisonXLSX(w, label, cmp) })
}

func writeFile(dir, label string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.xlsx", time.Now().Format("20060102"), sanitizeFilenamePart(label)))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := write(out); err != nil {
		out.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}

type styles struct {
	header, title, percent int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return s, err
	}
	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 13}}); err != nil {
		return s, err
	}
	if s.percent, err = f.NewStyle(&excelize.Style{NumFmt: 10}); err != nil {
		return s, err
	}
	return s, nil
}

func header(f *excelize.File, sheet string, st styles, cols ...string) {
	for i, c := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, c)
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	_ = f.SetCellStyle(sheet, "A1", last, st.header)
}

func sanitizeFilenamePart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "\"", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_")
	s = strings.ReplaceAll(repl.Replace(s), " ", "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}
