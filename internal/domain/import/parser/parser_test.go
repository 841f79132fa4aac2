package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

var (
	genericBankHeaders = []string{"תאריך", "תיאור", "חובה", "זכות", "יתרה"}
	hapoalimHeaders    = []string{"תאריך ביצוע", "פירוט התנועה", "סכום חיוב", "סכום זיכוי", "שם בית עסק", "יתרה"}
	discountHeaders    = []string{"תאריך ערך", "הערות", "חובה", "זכות", "יתרה"}
	maxHeaders         = []string{"תאריך רכישה", "שם בית עסק", "סכום עסקה", "תאריך חיוב", "מטבע", "סכום מקורי"}
	calHeaders         = []string{"תאריך עסקה", "שם בית עסק", "סכום", "פירוט"}
)

func row(index int, cells ...string) sniffer.Row {
	return sniffer.Row{Index: index, Line: index + 1, Cells: cells}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ============================================================================
// Detection
// ============================================================================

func TestRegistry_Detect(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name    string
		headers []string
		want    string
	}{
		{"generic header ties go to leumi", genericBankHeaders, "leumi"},
		{"hapoalim", hapoalimHeaders, "hapoalim"},
		{"discount", discountHeaders, "discount"},
		{"max", maxHeaders, "max"},
		{"cal", calHeaders, "cal"},
		{"english leumi", []string{"Date", "Description", "Debit", "Credit"}, "leumi"},
		{"whitespace and case", []string{" DATE ", "description", "debit", "CREDIT"}, "leumi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := reg.Detect(tt.headers)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Parser.Format().Name)
			assert.GreaterOrEqual(t, m.Score, MatchThreshold)
		})
	}
}

func TestRegistry_DetectUnknown(t *testing.T) {
	_, err := DefaultRegistry().Detect([]string{"foo", "bar", "baz"})
	assert.ErrorIs(t, err, ErrFormatUnknown)
}

func TestFormat_Score(t *testing.T) {
	assert.Equal(t, 1.0, leumiFormat.Score(genericBankHeaders))
	assert.Equal(t, 0.0, leumiFormat.Score(hapoalimHeaders))
	assert.Equal(t, 0.5, leumiFormat.Score(calHeaders))
	assert.Equal(t, 0.0, calFormat.Score(maxHeaders))
	assert.InDelta(t, 2.0/3.0, maxFormat.Score(calHeaders), 1e-9)

	// Narrower than the minimum column count.
	assert.Equal(t, 0.0, leumiFormat.Score([]string{"תאריך", "תיאור", "חובה"}))
}

func TestRegistry_Resolve(t *testing.T) {
	reg := DefaultRegistry()

	m, err := reg.Resolve(genericBankHeaders, "Discount")
	require.NoError(t, err)
	assert.Equal(t, "discount", m.Parser.Format().Name)

	_, err = reg.Resolve(maxHeaders, "leumi")
	assert.ErrorIs(t, err, ErrFormatMismatch)
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "leumi", mismatch.Format)

	_, err = reg.Resolve(genericBankHeaders, "leumy")
	assert.ErrorIs(t, err, ErrFormatUnknown)
	var unknown *UnknownFormatError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, []string{"leumi"}, unknown.Suggestions)
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewCalParser()))
	assert.Error(t, reg.Register(NewCalParser()))

	p, err := reg.Get("CAL")
	require.NoError(t, err)
	assert.Equal(t, "cal", p.Format().Name)

	names := make([]string, 0)
	for _, f := range DefaultRegistry().Formats() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"leumi", "hapoalim", "discount", "max", "cal"}, names)
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := DefaultRegistry()
	assert.Panics(t, func() { reg.mustRegister(NewLeumiParser()) })
	assert.NotPanics(t, func() { NewRegistry().mustRegister(NewLeumiParser()) })
}

// ============================================================================
// Bank rows
// ============================================================================

func TestLeumi_ParseRow(t *testing.T) {
	p := NewLeumiParser()
	h := leumiFormat.Resolve(append(genericBankHeaders, "אסמכתא"))

	tx, err := p.ParseRow(h, row(1, "01/02/2026", "פז - תחנת דלק", "150.00", "", "4000.00", "88123"))
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 1), tx.Date)
	assertAmount(t, "-150.00", tx.Amount)
	assert.Equal(t, "פז - תחנת דלק", tx.Description)
	require.NotNil(t, tx.Reference)
	assert.Equal(t, "88123", *tx.Reference)
	assert.Equal(t, 1, tx.SourceRow)
	assert.Equal(t, ledger.MethodNone, tx.Categorization.Method)
	assert.Nil(t, tx.Merchant)

	tx, err = p.ParseRow(h, row(2, "2/2/2026", "משכורת", "0.00", "12,000.00", "16000", ""))
	require.NoError(t, err)
	assertAmount(t, "12000", tx.Amount)
	assert.Nil(t, tx.Reference)
}

func TestLeumi_RowErrors(t *testing.T) {
	p := NewLeumiParser()
	h := leumiFormat.Resolve(genericBankHeaders)

	tests := []struct {
		name   string
		cells  []string
		column Role
	}{
		{"bad date", []string{"תאריך: ???", "פז", "150.00", "", ""}, RoleDate},
		{"empty description", []string{"01/02/2026", " ", "150.00", "", ""}, RoleDescription},
		{"both sides", []string{"01/02/2026", "פז", "150.00", "20.00", ""}, RoleDebit},
		{"neither side", []string{"01/02/2026", "פז", "", "0", ""}, RoleDebit},
		{"unparseable credit", []string{"01/02/2026", "פז", "", "abc", ""}, RoleCredit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseRow(h, row(7, tt.cells...))
			var rowErr *RowParseError
			require.True(t, errors.As(err, &rowErr))
			assert.Equal(t, 7, rowErr.Row)
			assert.Equal(t, string(tt.column), rowErr.Column)
			assert.NotEmpty(t, rowErr.Raw)
		})
	}
}

func TestHapoalim_ParseRow(t *testing.T) {
	p := NewHapoalimParser()
	h := hapoalimFormat.Resolve(hapoalimHeaders)

	tx, err := p.ParseRow(h, row(3, "05.02.2026", "כרטיס אשראי", "₪ 89.90", "", "WOLT *1234", "100"))
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 5), tx.Date)
	assertAmount(t, "-89.90", tx.Amount)
	require.NotNil(t, tx.Merchant)
	assert.Equal(t, "WOLT", *tx.Merchant)
}

func TestDiscount_ParseRow(t *testing.T) {
	p := NewDiscountParser()
	h := discountFormat.Resolve(discountHeaders)

	tx, err := p.ParseRow(h, row(1, "2026-02-10", "העברה", "", "(500.00)", "0"))
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 10), tx.Date)
	assertAmount(t, "500", tx.Amount)
}

func TestMax_ParseRow(t *testing.T) {
	p := NewMaxParser()
	h := maxFormat.Resolve(maxHeaders)

	tx, err := p.ParseRow(h, row(1, "01/02/2026", "שופרסל דיל כרטיס 4321", "89.90", "10/03/2026", "₪", ""))
	require.NoError(t, err)
	assertAmount(t, "-89.90", tx.Amount)
	assert.Equal(t, "שופרסל דיל כרטיס 4321", tx.Description)
	require.NotNil(t, tx.Merchant)
	assert.Equal(t, "שופרסל דיל", *tx.Merchant)
	assert.Nil(t, tx.OriginalCurrency)
	assert.Nil(t, tx.OriginalAmount)

	tx, err = p.ParseRow(h, row(2, "3/2/26", "AMAZON MKTPLACE XXXX5678", "75.10", "", "usd", "20.00"))
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 3), tx.Date)
	require.NotNil(t, tx.OriginalCurrency)
	assert.Equal(t, "USD", *tx.OriginalCurrency)
	require.NotNil(t, tx.OriginalAmount)
	assertAmount(t, "-20", *tx.OriginalAmount)

	_, err = p.ParseRow(h, row(3, "01/02/2026", "", "10", "", "", ""))
	var rowErr *RowParseError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, string(RoleMerchant), rowErr.Column)
}

func TestCal_ParseRow(t *testing.T) {
	p := NewCalParser()
	h := calFormat.Resolve(calHeaders)

	tx, err := p.ParseRow(h, row(1, "01/02/2026", "סופר פארם", "45", "הוראת קבע"))
	require.NoError(t, err)
	assert.Equal(t, "הוראת קבע", tx.Description)
	assertAmount(t, "-45", tx.Amount)
	require.NotNil(t, tx.Merchant)
	assert.Equal(t, "סופר פארם", *tx.Merchant)

	tx, err = p.ParseRow(h, row(2, "01/02/2026", "סופר פארם", "45", ""))
	require.NoError(t, err)
	assert.Equal(t, "סופר פארם", tx.Description)

	_, err = p.ParseRow(h, row(3, "01/02/2026", "", "45", ""))
	assert.Error(t, err)
}

// ============================================================================
// Field helpers
// ============================================================================

func TestParseDate(t *testing.T) {
	layouts := []string{layoutSlash, layoutDash, layoutDot, layoutSlashShort}
	want := date(2026, time.February, 1)

	for _, input := range []string{
		"01/02/2026",
		"1/2/2026",
		"01-02-2026",
		"01.02.2026",
		"01/02/26",
		"01/02/2026 00:00",
	} {
		t.Run(input, func(t *testing.T) {
			got, err := parseDate(input, layouts, false)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	for _, input := range []string{"", "2026-02-01", "32/01/2026", "תאריך: ???", "7", "45000", "46054"} {
		_, err := parseDate(input, layouts, false)
		assert.Error(t, err, input)
	}
}

func TestParseDate_WorkbookSerial(t *testing.T) {
	layouts := []string{layoutSlash}

	got, err := parseDate("46054", layouts, true)
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 1), got)

	got, err = parseDate("01/02/2026", layouts, true)
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 1), got)

	_, err = parseDate("not a date", layouts, true)
	assert.Error(t, err)
}

func TestLeumi_NumericDateInTextExportIsRowError(t *testing.T) {
	table, err := sniffer.Sniff("תאריך,תיאור,חובה,זכות,יתרה\n" +
		"45000,שופרסל,100.00,,900\n" +
		"7,פז,50,,850\n" +
		"01/02/2026,סונול,20,,830\n")
	require.NoError(t, err)

	m, err := DefaultRegistry().Detect(table.Headers)
	require.NoError(t, err)

	for _, r := range table.Rows[:2] {
		_, err := m.Parser.ParseRow(m.Header, r)
		var rowErr *RowParseError
		require.True(t, errors.As(err, &rowErr), "row %d", r.Index)
		assert.Equal(t, string(RoleDate), rowErr.Column)
	}

	tx, err := m.Parser.ParseRow(m.Header, table.Rows[2])
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 1), tx.Date)
}

func TestEndToEnd_SniffedLeumi(t *testing.T) {
	table, err := sniffer.Sniff("תאריך,תיאור,חובה,זכות,יתרה\n" +
		"01/02/2026,פז - תחנת דלק,150.00,,4000.00\n" +
		"תאריך: ???,שגוי,10,,\n" +
		"03/02/2026,משכורת,,12000.00,16000.00\n")
	require.NoError(t, err)

	m, err := DefaultRegistry().Detect(table.Headers)
	require.NoError(t, err)
	assert.Equal(t, "leumi", m.Parser.Format().Name)

	var parsed []*ledger.Transaction
	var rowErrs []*RowParseError
	for _, r := range table.Rows {
		tx, err := m.Parser.ParseRow(m.Header, r)
		if err != nil {
			var rowErr *RowParseError
			require.True(t, errors.As(err, &rowErr))
			rowErrs = append(rowErrs, rowErr)
			continue
		}
		parsed = append(parsed, tx)
	}

	require.Len(t, parsed, 2)
	require.Len(t, rowErrs, 1)
	assert.Equal(t, 2, rowErrs[0].Row)
	assertAmount(t, "12000", parsed[1].Amount)
}
