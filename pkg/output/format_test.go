package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iwvelando/loan-engine/pkg/amortization"
	"github.com/iwvelando/loan-engine/pkg/datetime"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

func testSchedule(t *testing.T) []amortization.Entry {
	t.Helper()
	schedule, err := amortization.BuildSchedule(amortization.Params{
		Principal:         decimal.NewFromInt(1200),
		AnnualRatePercent: decimal.Zero,
		TermMonths:        3,
		StartDate:         datetime.MustParseTime(datetime.DateLayout, "2025-01-15"),
	})
	if err != nil {
		t.Fatalf("BuildSchedule() error = %v", err)
	}
	return schedule
}

func TestPrettyFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := PrettyFormat(&buf, "Car", testSchedule(t)); err != nil {
		t.Fatalf("PrettyFormat() error = %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"--- Amortization schedule for Car ---",
		"#   | Date       | Payment",
		"2025-02-15",
		"2025-04-15",
		"$400.00",
		"$800.00",
		"Payments: 3, total paid $1,200.00, total interest $0.00, payoff 2025-04-15",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("PrettyFormat output missing %q:\n%s", want, output)
		}
	}
}

func TestCsvFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := CsvFormat(&buf, testSchedule(t)); err != nil {
		t.Fatalf("CsvFormat() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %d lines", len(lines))
	}
	if lines[0] != "payment,date,total,principal,interest,balance" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "1,2025-02-15,400.00,400.00,0.00,800.00" {
		t.Errorf("unexpected first row %q", lines[1])
	}
	if lines[3] != "3,2025-04-15,400.00,400.00,0.00,0.00" {
		t.Errorf("unexpected last row %q", lines[3])
	}
}

func TestYAMLFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := YAMLFormat(&buf, "Car", testSchedule(t)); err != nil {
		t.Fatalf("YAMLFormat() error = %v", err)
	}

	var doc yamlSchedule
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if doc.Name != "Car" || doc.Payments != 3 || doc.TotalPaid != "1200.00" || doc.TotalPrincipal != "1200.00" || doc.TotalInterest != "0.00" {
		t.Errorf("unexpected document header %+v", doc)
	}
	if len(doc.Schedule) != 3 || doc.Schedule[2].Balance != "0.00" || doc.Schedule[0].Date != "2025-02-15" {
		t.Errorf("unexpected schedule %+v", doc.Schedule)
	}
}

func TestWrite(t *testing.T) {
	tests := []struct {
		format  string
		prefix  string
		wantErr bool
	}{
		{"pretty", "--- Amortization schedule", false},
		{"csv", "payment,date", false},
		{"yaml", "name: Car", false},
		{"html", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := Write(&buf, tt.format, "Car", testSchedule(t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Write() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.HasPrefix(buf.String(), tt.prefix) {
				t.Errorf("Write(%s) output starts with %q", tt.format, buf.String())
			}
		})
	}
}
