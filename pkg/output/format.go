// Package output provides utilities for formatting and displaying correction results.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/tovarich86/calculadora-cidada/pkg/correction"
	"github.com/tovarich86/calculadora-cidada/pkg/format"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrettyFormat writes the human-readable report: the accumulated figures first, then the
// monthly table. Notes are printed after the table, one per line.
func PrettyFormat(w io.Writer, result correction.Result, notes ...string) error {
	p := message.NewPrinter(language.BrazilianPortuguese)

	lines := []struct {
		label string
		value string
	}{
		{"Período", fmt.Sprintf("%s a %s (%d meses)", result.Start, result.End, result.Months)},
		{"Critério do primeiro mês", result.Policy.String()},
		{"IPCA acumulado no período", format.Percent(result.AccumulatedVariation)},
		{"IPCA acumulado no período mais taxa prefixada", format.Percent(result.AccumulatedWithRate)},
		{"Valor inicial", format.Currency(result.BaseAmount)},
		{"Valor corrigido pelo IPCA", format.Currency(result.CorrectedByIndex)},
		{"Valor corrigido pelo IPCA mais taxa prefixada", format.Currency(result.CorrectedWithRate)},
	}
	if result.AnnualRate > 0 {
		lines = append(lines, struct {
			label string
			value string
		}{"Taxa prefixada", fmt.Sprintf("%s a.a. (%s a.m.)", format.Percent(result.AnnualRate), format.Percent(result.MonthlyRate))})
	}
	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s: %s\n", line.label, line.value); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "\nValores mensais do IPCA no período:\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Data    | Índice IPCA | Variação Mensal\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "____    | ___________ | _______________\n"); err != nil {
		return err
	}
	for _, row := range result.Breakdown {
		if _, err := p.Fprintf(w, "%s | %11.2f | %s\n", row.Period, row.Index, format.Percent(row.Variation)); err != nil {
			return err
		}
	}

	if len(notes) > 0 {
		if _, err := fmt.Fprintf(w, "\n"); err != nil {
			return err
		}
		for _, note := range notes {
			if _, err := fmt.Fprintf(w, "Aviso: %s\n", note); err != nil {
				return err
			}
		}
	}
	return nil
}

// CsvFormat writes the monthly breakdown followed by a summary row, in comma-separated value
// format with dot decimals so spreadsheets can read it regardless of locale.
func CsvFormat(w io.Writer, result correction.Result) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = false

	records := [][]string{{"period", "index", "variation"}}
	for _, row := range result.Breakdown {
		records = append(records, []string{
			row.Period.String(),
			strconv.FormatFloat(row.Index, 'f', -1, 64),
			strconv.FormatFloat(row.Variation, 'f', -1, 64),
		})
	}
	records = append(records,
		[]string{},
		[]string{"start", "end", "months", "policy", "base_amount", "annual_rate", "accumulated", "accumulated_with_rate", "corrected_by_index", "corrected_with_rate"},
		[]string{
			result.Start.String(),
			result.End.String(),
			strconv.Itoa(result.Months),
			result.Policy.String(),
			strconv.FormatFloat(result.BaseAmount, 'f', 2, 64),
			strconv.FormatFloat(result.AnnualRate, 'f', -1, 64),
			strconv.FormatFloat(result.AccumulatedVariation, 'f', 6, 64),
			strconv.FormatFloat(result.AccumulatedWithRate, 'f', 6, 64),
			strconv.FormatFloat(result.CorrectedByIndex, 'f', 2, 64),
			strconv.FormatFloat(result.CorrectedWithRate, 'f', 2, 64),
		},
	)

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
