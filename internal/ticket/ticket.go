// Package ticket renders booking e-tickets as PDF documents.
package ticket

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/kirinyoku/citybus/internal/domain"
)

const ContentType = "application/pdf"

// Filename is the suggested download name for the ticket of pnr.
func Filename(pnr string) string {
	return fmt.Sprintf("ticket-%s.pdf", pnr)
}

// Render builds a one-page e-ticket for b. trip may be nil when the trip is
// no longer available; its schedule lines are then left out.
func Render(b *domain.Booking, trip *domain.Trip) ([]byte, error) {
	const op = "ticket.Render"

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle("E-Ticket "+b.PNR, false)
	pdf.SetCreator("citybus", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "CITY BUS E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Courier", "B", 14)
	pdf.Cell(0, 8, "PNR "+b.PNR)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	for _, l := range lines(b, trip) {
		pdf.Cell(40, 7, l[0])
		pdf.Cell(0, 7, l[1])
		pdf.Ln(7)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5,
		"Valid for one passenger on the seat shown. Cancellations close 24 hours before travel; "+
			"refunds are 70% of the fare.",
		"", "", false)

	if b.Status != domain.BookingConfirmed {
		pdf.SetFont("Helvetica", "B", 28)
		pdf.SetTextColor(200, 0, 0)
		pdf.Ln(6)
		pdf.Cell(0, 14, strings.ToUpper(string(b.Status)))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return buf.Bytes(), nil
}

func lines(b *domain.Booking, trip *domain.Trip) [][2]string {
	out := [][2]string{
		{"Passenger", dash(b.Passenger.Name)},
		{"Phone", dash(b.Passenger.Phone)},
		{"Bus", dash(b.BusName)},
		{"Route", fmt.Sprintf("%s -> %s", dash(b.From), dash(b.To))},
		{"City", dash(b.City)},
		{"Travel date", b.TravelDate.Format(time.DateOnly)},
		{"Seat", fmt.Sprintf("%d", b.SeatNumber)},
		{"Fare", fmt.Sprintf("%d", b.Fare)},
		{"Payment", fmt.Sprintf("%s (%s)", b.PaymentMethod, b.PaymentStatus)},
		{"Status", string(b.Status)},
	}

	if trip != nil {
		out = append(out,
			[2]string{"Bus number", dash(trip.BusNumber)},
			[2]string{"Tracking no.", dash(trip.TrackingNumber)},
			[2]string{"Departure", trip.DepartureTime.String()},
			[2]string{"Arrival", trip.ArrivalTime.String()},
		)
	}

	if b.Status == domain.BookingCancelled {
		out = append(out, [2]string{"Refund", fmt.Sprintf("%d", b.RefundAmount)})
	}

	return out
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
