package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kamdhenuseva/server/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const brand = "Dayadevraha"

var ist = time.FixedZone("IST", 5*60*60+30*60)

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// FormatINR renders an amount as rupees, e.g. ₹2,100.
func FormatINR(amount decimal.Decimal) string {
	whole := amount.Truncate(0)
	s := whole.String()
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg, s = true, s[1:]
	}
	// Indian grouping: last three digits, then pairs.
	if len(s) > 3 {
		head, tail := s[:len(s)-3], s[len(s)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		s = ""
		for _, g := range groups {
			s += g + ","
		}
		s += tail
	}
	if frac := amount.Sub(whole).Abs(); !frac.IsZero() {
		s += frac.StringFixed(2)[1:]
	}
	if neg {
		s = "-" + s
	}
	return "₹" + s
}

func formatTTL(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		n := int(d / (24 * time.Hour))
		if n == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", n)
	case d >= time.Hour:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return fmt.Sprintf("%d seconds", int(d/time.Second))
	}
}

// OTPMessage builds the email carrying a one-time code.
func OTPMessage(to string, intent model.OTPIntent, code string, ttl time.Duration) (Message, error) {
	html, err := render("otp.html", struct {
		Label     string
		Code      string
		ExpiresIn string
	}{intent.Label(), code, formatTTL(ttl)})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s OTP - %s", intent.Label(), brand),
		HTML:    html,
	}, nil
}

// DonationReceipt builds the thank-you email sent once a donation is captured.
func DonationReceipt(to, name string, d model.Donation) (Message, error) {
	purpose := "the ashram"
	if d.Kind == model.DonationCow {
		purpose = "cow care"
	}
	paymentID := ""
	if d.ProviderPaymentID != nil {
		paymentID = *d.ProviderPaymentID
	}
	html, err := render("donation_received.html", struct {
		Name, Amount, Purpose, OrderID, PaymentID string
	}{name, FormatINR(d.Amount), purpose, d.ProviderOrderID, paymentID})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Thank You for Your Donation - " + brand,
		HTML:    html,
	}, nil
}

// PujaPaymentReceived builds the confirmation sent once a puja order is paid.
func PujaPaymentReceived(o model.PujaOrder) (Message, error) {
	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	name := o.Customer.Name
	if name == "" {
		name = "Devotee"
	}
	preferred := ""
	if o.Details.PreferredDate != nil {
		preferred = o.Details.PreferredDate.In(ist).Format("02 Jan 2006, 15:04 IST")
	}
	html, err := render("puja_payment_received.html", struct {
		Name, Amount, OrderID, Gotra, Sankalpam, NamesToInclude, PreferredDate, AdditionalNotes string
	}{
		name, FormatINR(o.Amount), o.ProviderOrderID,
		orDash(o.Details.Gotra), orDash(o.Details.Sankalpam), orDash(o.Details.NamesToInclude),
		preferred, orDash(o.Details.AdditionalNotes),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      o.Customer.Email,
		Subject: "Cow Puja - Payment received",
		HTML:    html,
	}, nil
}
