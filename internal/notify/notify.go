// Package notify sends order e-mails to customers.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/boutique-checkout/internal/domain/customer"
	"github.com/xenking/boutique-checkout/internal/domain/order"
	"github.com/xenking/boutique-checkout/internal/invoice"
)

// InvoiceRenderer renders the invoice attached to confirmations.
type InvoiceRenderer interface {
	Render(o *order.Order) ([]byte, error)
}

// CustomerGetter looks up the customer an order belongs to.
type CustomerGetter interface {
	Get(ctx context.Context, id string) (*customer.Customer, error)
}

var bodies = template.Must(template.New("mail").Funcs(template.FuncMap{
	"fcfa": invoice.FormatAmount,
}).Parse(`
{{define "placed"}}<p>Bonjour {{.Name}},</p>
<p>Nous avons bien reçu votre commande <strong>{{.Order.Number}}</strong> d'un montant de
<strong>{{fcfa .Order.Total}}</strong>.</p>
<p>Livraison {{.Order.DeliveryType.Label}} vers la zone {{.Order.ShippingZoneName}}.
Votre facture est jointe à ce message.</p>{{end}}
{{define "status"}}<p>Bonjour {{.Name}},</p>
<p>Votre commande <strong>{{.Order.Number}}</strong> est maintenant : <strong>{{.Order.Status.Label}}</strong>.</p>{{end}}
`))

// Notifier builds order e-mails and hands them to a Sender.
type Notifier struct {
	sender    Sender
	customers CustomerGetter
	invoices  InvoiceRenderer
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewNotifier creates a Notifier. Each background delivery is bounded by
// timeout.
func NewNotifier(sender Sender, customers CustomerGetter, invoices InvoiceRenderer, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Notifier{sender: sender, customers: customers, invoices: invoices, timeout: timeout}
}

type mailView struct {
	Name  string
	Order *order.Order
}

// OrderPlaced sends the confirmation of o with its invoice attached.
func (n *Notifier) OrderPlaced(ctx context.Context, o *order.Order) error {
	if o.CustomerEmail == "" {
		return nil
	}

	var (
		name string
		doc  []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		name, err = n.customerName(gctx, o.CustomerID)
		return err
	})
	g.Go(func() error {
		var err error
		if doc, err = n.invoices.Render(o); err != nil {
			return errors.Wrap(err, "render invoice")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	html, err := render("placed", mailView{Name: name, Order: o})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, Message{
		To:      o.CustomerEmail,
		Subject: fmt.Sprintf("Confirmation de commande %s", o.Number),
		HTML:    html,
		Text: fmt.Sprintf("Bonjour %s, nous avons bien reçu votre commande %s (%s).",
			name, o.Number, invoice.FormatAmount(o.Total)),
		Attachments: []Attachment{{
			Name:        "facture-" + o.Number + ".html",
			ContentType: "text/html",
			Data:        doc,
		}},
	})
}

// StatusChanged tells the customer about the new status of o.
func (n *Notifier) StatusChanged(ctx context.Context, o *order.Order) error {
	if o.CustomerEmail == "" {
		return nil
	}
	name, err := n.customerName(ctx, o.CustomerID)
	if err != nil {
		return err
	}
	html, err := render("status", mailView{Name: name, Order: o})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, Message{
		To:      o.CustomerEmail,
		Subject: fmt.Sprintf("Commande %s : %s", o.Number, o.Status.Label()),
		HTML:    html,
		Text:    fmt.Sprintf("Bonjour %s, votre commande %s est maintenant : %s.", name, o.Number, o.Status.Label()),
	})
}

// Go runs fn in the background, detached from the caller's cancellation.
// Failures are logged and never reach the caller.
func (n *Notifier) Go(ctx context.Context, kind string, o *order.Order, fn func(context.Context, *order.Order) error) {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer n.recoverDelivery(ctx, kind, o)
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		if err := fn(ctx, o); err != nil {
			zctx.From(ctx).Error("Notification failed",
				zap.String("kind", kind),
				zap.String("order_number", o.Number),
				zap.Error(err),
			)
		}
	}()
}

// recoverDelivery keeps a panicking delivery from taking the server down
// after the order is committed.
func (n *Notifier) recoverDelivery(ctx context.Context, kind string, o *order.Order) {
	rec := recover()
	if rec == nil {
		return
	}
	zctx.From(ctx).Error("Notification panicked",
		zap.String("kind", kind),
		zap.String("order_number", o.Number),
		zap.Any("panic", rec),
		zap.Stack("stack"),
	)
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("notification", kind)
		scope.SetTag("order_number", o.Number)
		hub.RecoverWithContext(ctx, rec)
	})
}

// Wait blocks until background deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) customerName(ctx context.Context, id string) (string, error) {
	c, err := n.customers.Get(ctx, id)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "get customer")
	}
	return c.Username, nil
}

func render(name string, v mailView) (string, error) {
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, name, v); err != nil {
		return "", errors.Wrapf(err, "render %s mail", name)
	}
	return buf.String(), nil
}
