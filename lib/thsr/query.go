package thsr

import (
	"fmt"
	"regexp"
	"strings"
	"thsr-receipts/lib/textutil"
	"thsr-receipts/lib/timezone"
	"time"
)

type QueryType string

const (
	QueryTicket  QueryType = "ticket"
	QueryBooking QueryType = "booking"
)

// Params are the raw query parameters as they come off the command line.
type Params struct {
	Date    string
	From    string
	To      string
	Ticket  string
	Booking string
}

// ParamError reports every missing or malformed parameter at once.
type ParamError struct {
	Missing []string
	Invalid []string
}

func (e *ParamError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required parameters: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid parameters: %s", strings.Join(e.Invalid, ", ")))
	}
	return strings.Join(parts, "; ")
}

type Query struct {
	Date time.Time
	// From and To keep the station names as they were given, they end up
	// in the receipt's file name.
	From         string
	To           string
	TicketNumber string
	BookingCode  string
}

// SanitizeTicket strips everything but digits from a ticket number.
func SanitizeTicket(ticket string) string {
	return textutil.DigitsOnly(ticket)
}

func sanitizeBooking(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Query validates the parameters, a *ParamError is returned when anything
// required is missing or malformed.
func (p Params) Query() (Query, error) {
	perr := &ParamError{}

	date := strings.TrimSpace(p.Date)
	from := strings.TrimSpace(p.From)
	to := strings.TrimSpace(p.To)
	ticket := strings.TrimSpace(p.Ticket)
	booking := strings.TrimSpace(p.Booking)

	if date == "" {
		perr.Missing = append(perr.Missing, "--date")
	}
	if from == "" {
		perr.Missing = append(perr.Missing, "--from")
	}
	if to == "" {
		perr.Missing = append(perr.Missing, "--to")
	}
	if ticket == "" && booking == "" {
		perr.Missing = append(perr.Missing, "--ticket or --booking")
	}

	q := Query{
		From:         from,
		To:           to,
		TicketNumber: SanitizeTicket(ticket),
		BookingCode:  sanitizeBooking(booking),
	}
	if date != "" {
		parsed, err := timezone.ParseDate(date)
		if err != nil {
			perr.Invalid = append(perr.Invalid, fmt.Sprintf("--date %q (expected YYYY-MM-DD)", date))
		}
		q.Date = parsed
	}
	if ticket != "" && q.TicketNumber == "" {
		perr.Invalid = append(perr.Invalid, fmt.Sprintf("--ticket %q (no digits)", ticket))
	}

	if len(perr.Missing) > 0 || len(perr.Invalid) > 0 {
		return Query{}, perr
	}
	return q, nil
}

// Type is ticket whenever a ticket number is present.
func (q Query) Type() QueryType {
	if q.TicketNumber != "" {
		return QueryTicket
	}
	return QueryBooking
}

func (q Query) Identifier() string {
	if q.Type() == QueryTicket {
		return q.TicketNumber
	}
	return q.BookingCode
}

func (q Query) DateString() string {
	return q.Date.Format(time.DateOnly)
}

// MonthKey is the YYYY-MM folder the receipt is filed under.
func (q Query) MonthKey() string {
	return q.Date.Format("2006-01")
}

func (q Query) FileName() string {
	return FileName(q.Date, q.From, q.To, q.Identifier())
}

// path separators and the "_" separator never make it into a name
// component, station names also lose the "-" between them
var unsafeFileChars = strings.NewReplacer(
	"/", "",
	`\`, "",
	"_", "",
	" ", "",
	":", "",
)

var unsafeStationChars = strings.NewReplacer("-", "")

func stationFilePart(name string) string {
	return unsafeStationChars.Replace(unsafeFileChars.Replace(name))
}

// FileName builds THSR_<date>_<from>-<to>_<id>.pdf
func FileName(date time.Time, from, to, identifier string) string {
	return fmt.Sprintf(
		"THSR_%s_%s-%s_%s.pdf",
		date.Format(time.DateOnly),
		stationFilePart(from),
		stationFilePart(to),
		unsafeFileChars.Replace(identifier),
	)
}

// Name is a receipt file name split back into its parts.
type Name struct {
	Date       time.Time
	From       string
	To         string
	Identifier string
}

var fileNameRegex = regexp.MustCompile(`^THSR_(\d{4}-\d{2}-\d{2})_([^_\-]+)-([^_\-]+)_([^_]+)\.pdf$`)

// ParseFileName is the inverse of FileName.
func ParseFileName(name string) (Name, bool) {
	groups := fileNameRegex.FindStringSubmatch(name)
	if groups == nil {
		return Name{}, false
	}
	date, err := timezone.ParseDate(groups[1])
	if err != nil {
		return Name{}, false
	}
	return Name{
		Date:       date,
		From:       groups[2],
		To:         groups[3],
		Identifier: groups[4],
	}, true
}
