// Package output renders amortization schedules for the CLI.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/iwvelando/loan-engine/pkg/amortization"
	"github.com/iwvelando/loan-engine/pkg/constants"
	"github.com/iwvelando/loan-engine/pkg/format"
	"github.com/iwvelando/loan-engine/pkg/validation"
	"gopkg.in/yaml.v3"
)

// Write renders schedule in the named output format.
func Write(w io.Writer, outputFormat, name string, schedule []amortization.Entry) error {
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		return err
	}
	switch outputFormat {
	case constants.OutputFormatCSV:
		return CsvFormat(w, schedule)
	case constants.OutputFormatYAML:
		return YAMLFormat(w, name, schedule)
	default:
		return PrettyFormat(w, name, schedule)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, name string, schedule []amortization.Entry) error {
	summary := amortization.Summarize(schedule)

	lines := []string{
		fmt.Sprintf("--- Amortization schedule for %s ---\n", name),
		"#   | Date       | Payment       | Principal     | Interest      | Balance\n",
		"___ | __________ | _____________ | _____________ | _____________ | _______\n",
	}
	for _, e := range schedule {
		lines = append(lines, fmt.Sprintf("%-3d | %s | %13s | %13s | %13s | %s\n",
			e.PaymentNumber,
			e.PaymentDate.Format(constants.DateLayout),
			format.Currency(e.TotalPayment),
			format.Currency(e.PrincipalPayment),
			format.Currency(e.InterestPayment),
			format.Currency(e.RemainingBalance),
		))
	}
	if summary.Payments > 0 {
		lines = append(lines,
			"\n",
			fmt.Sprintf("Payments: %d, total paid %s, total interest %s, payoff %s\n",
				summary.Payments,
				format.Currency(summary.TotalPaid),
				format.Currency(summary.TotalInterest),
				summary.PayoffDate.Format(constants.DateLayout),
			),
		)
	}

	for _, line := range lines {
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// CsvFormat outputs in comma-separated value format.
func CsvFormat(w io.Writer, schedule []amortization.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"payment", "date", "total", "principal", "interest", "balance"}); err != nil {
		return err
	}
	for _, e := range schedule {
		record := []string{
			strconv.Itoa(e.PaymentNumber),
			e.PaymentDate.Format(constants.DateLayout),
			e.TotalPayment.StringFixed(constants.CurrencyPlaces),
			e.PrincipalPayment.StringFixed(constants.CurrencyPlaces),
			e.InterestPayment.StringFixed(constants.CurrencyPlaces),
			e.RemainingBalance.StringFixed(constants.CurrencyPlaces),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type yamlEntry struct {
	Payment   int    `yaml:"payment"`
	Date      string `yaml:"date"`
	Total     string `yaml:"total"`
	Principal string `yaml:"principal"`
	Interest  string `yaml:"interest"`
	Balance   string `yaml:"balance"`
}

type yamlSchedule struct {
	Name           string      `yaml:"name"`
	Payments       int         `yaml:"payments"`
	TotalPaid      string      `yaml:"totalPaid"`
	TotalPrincipal string      `yaml:"totalPrincipal"`
	TotalInterest  string      `yaml:"totalInterest"`
	Schedule       []yamlEntry `yaml:"schedule"`
}

// YAMLFormat outputs the schedule and its totals as a YAML document.
func YAMLFormat(w io.Writer, name string, schedule []amortization.Entry) error {
	summary := amortization.Summarize(schedule)
	doc := yamlSchedule{
		Name:           name,
		Payments:       summary.Payments,
		TotalPaid:      summary.TotalPaid.StringFixed(constants.CurrencyPlaces),
		TotalPrincipal: summary.TotalPrincipal.StringFixed(constants.CurrencyPlaces),
		TotalInterest:  summary.TotalInterest.StringFixed(constants.CurrencyPlaces),
		Schedule:       make([]yamlEntry, 0, len(schedule)),
	}
	for _, e := range schedule {
		doc.Schedule = append(doc.Schedule, yamlEntry{
			Payment:   e.PaymentNumber,
			Date:      e.PaymentDate.Format(constants.DateLayout),
			Total:     e.TotalPayment.StringFixed(constants.CurrencyPlaces),
			Principal: e.PrincipalPayment.StringFixed(constants.CurrencyPlaces),
			Interest:  e.InterestPayment.StringFixed(constants.CurrencyPlaces),
			Balance:   e.RemainingBalance.StringFixed(constants.CurrencyPlaces),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
