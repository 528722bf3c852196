package thsr

import (
	"errors"
	"testing"
	"thsr-receipts/lib/timezone"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParamsQuery(t *testing.T) {
	q, err := Params{
		Date:   "2024-03-15",
		From:   "台北",
		To:     "左營",
		Ticket: "08-2-12-3-045-0123",
	}.Query()
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, timezone.Location), q.Date)
	require.Equal(t, QueryTicket, q.Type())
	require.Equal(t, "0821230450123", q.Identifier())
	require.Equal(t, "THSR_2024-03-15_台北-左營_0821230450123.pdf", q.FileName())
	require.Equal(t, "2024-03", q.MonthKey())
}

func TestParamsQueryBooking(t *testing.T) {
	q, err := Params{
		Date:    "2024-11-02",
		From:    "新竹",
		To:      "台南",
		Booking: " ab12cd34 ",
	}.Query()
	require.NoError(t, err)
	require.Equal(t, QueryBooking, q.Type())
	require.Equal(t, "AB12CD34", q.Identifier())
	require.Equal(t, "THSR_2024-11-02_新竹-台南_AB12CD34.pdf", q.FileName())
}

func TestParamsQueryTicketWins(t *testing.T) {
	q, err := Params{Date: "2024-11-02", From: "新竹", To: "台南", Ticket: "123", Booking: "456"}.Query()
	require.NoError(t, err)
	require.Equal(t, QueryTicket, q.Type())
	require.Equal(t, "123", q.Identifier())
}

func TestParamsQueryMissing(t *testing.T) {
	cases := []struct {
		params  Params
		missing []string
	}{
		{
			params:  Params{},
			missing: []string{"--date", "--from", "--to", "--ticket or --booking"},
		},
		{
			params:  Params{Date: "2024-03-15", From: "台北", To: "左營"},
			missing: []string{"--ticket or --booking"},
		},
		{
			params:  Params{From: "台北", To: "左營", Ticket: "1"},
			missing: []string{"--date"},
		},
		{
			params:  Params{Date: "2024-03-15", To: " ", Booking: "X"},
			missing: []string{"--from", "--to"},
		},
	}

	for _, test := range cases {
		_, err := test.params.Query()
		var perr *ParamError
		require.True(t, errors.As(err, &perr))
		require.Equal(t, test.missing, perr.Missing)
	}
}

func TestParamsQueryInvalid(t *testing.T) {
	_, err := Params{Date: "15/03/2024", From: "台北", To: "左營", Ticket: "--"}.Query()
	var perr *ParamError
	require.True(t, errors.As(err, &perr))
	require.Empty(t, perr.Missing)
	require.Len(t, perr.Invalid, 2)
	require.Contains(t, err.Error(), "invalid parameters")
}

func TestParseFileName(t *testing.T) {
	date := time.Date(2024, time.March, 15, 0, 0, 0, 0, timezone.Location)
	name := FileName(date, "台北", "左營", "0821230450123")

	parsed, ok := ParseFileName(name)
	require.True(t, ok)
	require.True(t, date.Equal(parsed.Date))
	require.Equal(t, "台北", parsed.From)
	require.Equal(t, "左營", parsed.To)
	require.Equal(t, "0821230450123", parsed.Identifier)

	for _, invalid := range []string{
		"receipt.pdf",
		"THSR_2024-03-15_台北-左營_1.txt",
		"THSR_2024-3-15_台北-左營_1.pdf",
		".THSR_2024-03-15_台北-左營_1.pdf.part",
	} {
		_, ok := ParseFileName(invalid)
		require.False(t, ok, invalid)
	}
}

func TestFileNameStripsSeparators(t *testing.T) {
	date := time.Date(2024, time.March, 15, 0, 0, 0, 0, timezone.Location)
	name := FileName(date, "台/北", "左_營", "AB-12")
	require.Equal(t, "THSR_2024-03-15_台北-左營_AB-12.pdf", name)

	parsed, ok := ParseFileName(name)
	require.True(t, ok)
	require.Equal(t, "台北", parsed.From)
	require.Equal(t, "左營", parsed.To)
	require.Equal(t, "AB-12", parsed.Identifier)
}

func TestFileNameKeepsBookingDashes(t *testing.T) {
	date := time.Date(2024, time.March, 15, 0, 0, 0, 0, timezone.Location)
	q := Query{Date: date, From: "南港", To: "左營", BookingCode: "AB-12-34"}
	require.Equal(t, "THSR_2024-03-15_南港-左營_AB-12-34.pdf", q.FileName())

	parsed, ok := ParseFileName(q.FileName())
	require.True(t, ok)
	require.Equal(t, q.Identifier(), parsed.Identifier)
}
