// Package invoice renders order invoices with a payment QR code.
package invoice

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/xenking/boutique-checkout/internal/domain/order"
)

//go:embed templates/*.html
var templates embed.FS

// Seller identifies the shop on invoices and in payment QR codes.
type Seller struct {
	Name     string
	BankName string
	IBAN     string
}

// Renderer produces HTML invoices.
type Renderer struct {
	seller Seller
	tmpl   *template.Template
	loc    *time.Location
}

// NewRenderer parses the invoice template. Dates are shown in loc, or UTC
// when loc is nil.
func NewRenderer(seller Seller, loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	tmpl, err := template.New("invoice.html").Funcs(template.FuncMap{
		"fcfa": FormatAmount,
		"date": func(t time.Time) string { return t.In(loc).Format("02/01/2006 15:04") },
	}).ParseFS(templates, "templates/invoice.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse invoice template")
	}
	return &Renderer{seller: seller, tmpl: tmpl, loc: loc}, nil
}

type view struct {
	Seller Seller
	Order  *order.Order
	QR     template.URL
}

// Render returns the invoice of o as an HTML document.
func (r *Renderer) Render(o *order.Order) ([]byte, error) {
	qr, err := r.PaymentQR(o)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view{
		Seller: r.seller,
		Order:  o,
		QR:     template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(qr)),
	}); err != nil {
		return nil, errors.Wrapf(err, "render invoice %s", o.Number)
	}
	return buf.Bytes(), nil
}

// PaymentQR encodes the bank transfer details of o as a PNG QR code.
func (r *Renderer) PaymentQR(o *order.Order) ([]byte, error) {
	png, err := qrcode.Encode(PaymentPayload(r.seller, o), qrcode.Medium, 256)
	if err != nil {
		return nil, errors.Wrapf(err, "encode payment qr for %s", o.Number)
	}
	return png, nil
}

// PaymentPayload is the text carried by the payment QR code: one field per
// line with the beneficiary, account, amount and order number as reference.
func PaymentPayload(s Seller, o *order.Order) string {
	return fmt.Sprintf("BCD\n001\n1\nSCT\n%s\n%s\n%s\nXAF%s\n%s",
		s.BankName, s.Name, s.IBAN, o.Total.StringFixed(2), o.Number)
}

// FormatAmount renders an amount as "12 500 FCFA".
func FormatAmount(d decimal.Decimal) string {
	whole := d.Round(0).Abs().String()
	var out []byte
	for i, c := range []byte(whole) {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out = append(out, ' ')
		}
		out = append(out, c)
	}
	sign := ""
	if d.Round(0).IsNegative() {
		sign = "-"
	}
	return sign + string(out) + " FCFA"
}
