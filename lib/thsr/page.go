package thsr

import (
	"net/http"
	"time"
)

// Page is the handful of browser primitives the receipt form needs.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	WaitVisible(selector string, timeout time.Duration) error
	Fill(selector, value string) error
	Select(selector, value string) error
	Click(selector string) error
	// HTML returns the serialized document of the current page.
	HTML() (string, error)
	// URL returns the location of the current page.
	URL() (string, error)
	Cookies() ([]*http.Cookie, error)
	// WaitDownload runs trigger and blocks until the download it starts
	// has been written to disk, returning the path of the file.
	WaitDownload(trigger func() error, timeout time.Duration) (string, error)
}

// Selectors locate the elements of the receipt query form.
type Selectors struct {
	Date         string `json:"date"`
	From         string `json:"from"`
	To           string `json:"to"`
	TicketType   string `json:"ticket_type"`
	BookingType  string `json:"booking_type"`
	TicketNumber string `json:"ticket_number"`
	BookingCode  string `json:"booking_code"`
	Submit       string `json:"submit"`
	DownloadLink string `json:"download_link"`
	ErrorMessage string `json:"error_message"`
}

var DefaultSelectors = Selectors{
	Date:         `input[name="travelDate"]`,
	From:         `select[name="fromStation"]`,
	To:           `select[name="toStation"]`,
	TicketType:   `input[name="queryType"][value="ticket"]`,
	BookingType:  `input[name="queryType"][value="pnr"]`,
	TicketNumber: `input[name="ticketNo"]`,
	BookingCode:  `input[name="pnrCode"]`,
	Submit:       `button[type="submit"]`,
	DownloadLink: `a.download-receipt`,
	ErrorMessage: `.error-message`,
}

type Timings struct {
	NavigationTimeout time.Duration
	ResultsTimeout    time.Duration
	DownloadTimeout   time.Duration
	// StepPause is waited between form interactions.
	StepPause time.Duration
	// SubmitPause is waited after the form is submitted.
	SubmitPause time.Duration
}

var DefaultTimings = Timings{
	NavigationTimeout: time.Second * 30,
	ResultsTimeout:    time.Second * 30,
	DownloadTimeout:   time.Second * 30,
	StepPause:         time.Millisecond * 500,
	SubmitPause:       time.Second * 2,
}
