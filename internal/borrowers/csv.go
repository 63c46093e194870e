package borrowers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Required upload columns, in report order. Each entry lists the accepted
// header spellings; the first is canonical, the rest come from older
// exports of the same loan book.
var requiredColumns = []struct {
	names    []string
	friendly string
}{
	{[]string{"Mobile_No"}, "Mobile Number"},
	{[]string{"F_Name"}, "First Name"},
	{[]string{"L_Name"}, "Last Name"},
	{[]string{"Current_balance", "balance_to_pay"}, "Current Balance"},
	{[]string{"Installment_Amount", "installment"}, "Installment Amount"},
	{[]string{"Date_of_last_payment", "last_date"}, "Date of Last Payment"},
}

const channelColumn = "Channel_Preference"

// MissingColumnsError reports which required columns an upload lacks.
type MissingColumnsError struct {
	Columns       []string
	FriendlyNames []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// Message is the operator-facing summary shown next to the upload control.
func (e *MissingColumnsError) Message() string {
	return fmt.Sprintf("Your CSV is missing: %s", strings.Join(e.FriendlyNames, ", "))
}

// ParseCSV reads an uploaded borrower list. Any success is a full-replace
// signal for the directory; there is no partial merge.
func ParseCSV(r io.Reader) ([]Borrower, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("invalid csv format: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	columns := make([]int, len(requiredColumns))
	var missing *MissingColumnsError
	for i, col := range requiredColumns {
		columns[i] = -1
		for _, name := range col.names {
			if at, ok := index[name]; ok {
				columns[i] = at
				break
			}
		}
		if columns[i] < 0 {
			if missing == nil {
				missing = &MissingColumnsError{}
			}
			missing.Columns = append(missing.Columns, col.names[0])
			missing.FriendlyNames = append(missing.FriendlyNames, col.friendly)
		}
	}
	if missing != nil {
		return nil, missing
	}
	channelAt := -1
	if at, ok := index[channelColumn]; ok {
		channelAt = at
	}

	var out []Borrower
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv format at line %d: %w", line, err)
		}

		b := Borrower{
			Phone:           normalizeCell(rec[columns[0]]),
			FirstName:       strings.TrimSpace(rec[columns[1]]),
			LastName:        strings.TrimSpace(rec[columns[2]]),
			LastPaymentDate: strings.TrimSpace(rec[columns[5]]),
		}
		if b.CurrentBalance, err = parseAmount(rec[columns[3]]); err != nil {
			return nil, fmt.Errorf("line %d: Current_balance: %w", line, err)
		}
		if b.InstallmentAmount, err = parseAmount(rec[columns[4]]); err != nil {
			return nil, fmt.Errorf("line %d: Installment_Amount: %w", line, err)
		}
		if channelAt >= 0 && channelAt < len(rec) {
			b.ChannelPreference = strings.ToLower(strings.TrimSpace(rec[channelAt]))
		}
		out = append(out, b)
	}
	return out, nil
}

// normalizeCell strips the trailing ".0" spreadsheet tools append to
// numeric phone columns.
func normalizeCell(v string) string {
	v = strings.TrimSpace(v)
	return strings.TrimSuffix(v, ".0")
}

func parseAmount(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", strings.TrimSpace(v))
	}
	return f, nil
}
