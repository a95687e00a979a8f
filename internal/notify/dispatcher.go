// Package notify handles post-checkout communication: rendering and
// dispatching order confirmation messages and fanning out the checkout
// completed signal to registered observers.
package notify

import (
	"bytes"
	"context"
	"text/template"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// CodeOrderPlaced is the communication type used for the message sent after
// a successful checkout.
const CodeOrderPlaced = "ORDER_PLACED"

// ErrTypeNotFound is returned when no communication type exists for a code.
var ErrTypeNotFound = errors.New("communication event type not found")

// EventType is a configurable message template keyed by code.
type EventType struct {
	Code            string
	Name            string
	SubjectTemplate string
	BodyTemplate    string
}

// Event records that a message of a given type was sent for an order.
type Event struct {
	OrderNumber string
	TypeCode    string
	CreatedAt   time.Time
}

// Repository provides communication type lookup and event recording.
type Repository interface {
	GetEventType(ctx context.Context, code string) (*EventType, error)
	CreateEvent(ctx context.Context, ev *Event) error
}

// Message is a rendered communication ready for delivery.
type Message struct {
	To      string
	Subject string
	Body    string
}

// EmailSender delivers rendered messages. Transport is out of scope here;
// production wires an SMTP or API-backed implementation.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them. The default sender
// until a real transport is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.Logger.Info("Order confirmation message",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Dispatcher renders and sends order communications. Dispatch is best-effort:
// an order is considered successfully placed regardless of messaging outcome,
// so every failure here is logged and swallowed.
type Dispatcher struct {
	repo   Repository
	sender EmailSender
	lg     *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(repo Repository, sender EmailSender, lg *zap.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, sender: sender, lg: lg}
}

// OrderContext is the data available to message templates.
type OrderContext struct {
	Order *order.Order
	Email string
}

// SendOrderConfirmation renders the ORDER_PLACED templates for the order and
// hands the result to the sender, recording a communication event. A missing
// type configuration logs a warning and returns nil.
func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, o *order.Order, email string) error {
	et, err := d.repo.GetEventType(ctx, CodeOrderPlaced)
	if err != nil {
		if errors.Is(err, ErrTypeNotFound) {
			d.lg.Warn("No communication event type configured",
				zap.String("order", o.Number),
				zap.String("code", CodeOrderPlaced),
			)
			return nil
		}
		return errors.Wrap(err, "get communication type")
	}

	msg, err := render(et, OrderContext{Order: o, Email: email})
	if err != nil {
		return errors.Wrap(err, "render confirmation")
	}
	msg.To = email

	if err := d.repo.CreateEvent(ctx, &Event{
		OrderNumber: o.Number,
		TypeCode:    et.Code,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return errors.Wrap(err, "record communication event")
	}

	d.lg.Info("Sending order confirmation",
		zap.String("order", o.Number),
		zap.String("code", et.Code),
	)
	if err := d.sender.Send(ctx, msg); err != nil {
		return errors.Wrap(err, "send confirmation")
	}
	return nil
}

func render(et *EventType, data OrderContext) (Message, error) {
	subject, err := renderTemplate(et.Code+"_subject", et.SubjectTemplate, data)
	if err != nil {
		return Message{}, err
	}
	body, err := renderTemplate(et.Code+"_body", et.BodyTemplate, data)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, Body: body}, nil
}

func renderTemplate(name, text string, data OrderContext) (string, error) {
	tpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "parse template %s", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "execute template %s", name)
	}
	return buf.String(), nil
}
