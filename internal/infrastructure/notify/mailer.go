// Package notify delivers email over SMTP and SMS through a Kafka topic
// consumed by the SMS gateway.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type MailerConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	TemplatesPath string
}

// Mailer renders and sends email. Templates are the *.html files of
// TemplatesPath, named by their lower-cased base name.
type Mailer struct {
	cfg       MailerConfig
	templates map[string]*template.Template
	outbox    ports.OutboxRepository
	send      SendFunc
	log       zerolog.Logger
	now       func() time.Time
}

// NewMailer loads the templates and returns a Mailer sending through
// smtp.SendMail. outbox may be nil.
func NewMailer(cfg MailerConfig, outbox ports.OutboxRepository, log zerolog.Logger) (*Mailer, error) {
	templates, err := loadTemplates(cfg.TemplatesPath)
	if err != nil {
		return nil, err
	}
	log.Info().Int("templates", len(templates)).Str("path", cfg.TemplatesPath).Msg("email templates loaded")

	return &Mailer{
		cfg:       cfg,
		templates: templates,
		outbox:    outbox,
		send:      smtp.SendMail,
		log:       log,
		now:       time.Now,
	}, nil
}

// WithSender replaces the SMTP transport.
func (m *Mailer) WithSender(send SendFunc) *Mailer {
	m.send = send
	return m
}

func loadTemplates(dir string) (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)
	if dir == "" {
		return templates, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	for _, f := range files {
		t, err := template.ParseFiles(f)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", f, err)
		}
		name := strings.ToLower(strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)))
		templates[name] = t
	}
	return templates, nil
}

// Send delivers n synchronously.
func (m *Mailer) Send(ctx context.Context, n domain.Notification) (*domain.Delivery, error) {
	body, contentType, err := m.render(n)
	if err != nil {
		return nil, err
	}

	ref := uuid.NewString()
	msg := m.compose(n, ref, contentType, body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{n.To}, msg); err != nil {
		return nil, domain.Upstream(fmt.Errorf("smtp send: %w", err))
	}

	d := domain.Delivery{Channel: domain.ChannelEmail, To: n.To, Accepted: m.now(), Ref: ref}
	if m.outbox != nil {
		if err := m.outbox.Insert(ctx, n, d); err != nil {
			m.log.Warn().Err(err).Str("to", n.To).Msg("email sent but not recorded")
		}
	}

	m.log.Debug().Str("to", n.To).Str("template", n.Template).Msg("email sent")
	return &d, nil
}

func (m *Mailer) render(n domain.Notification) ([]byte, string, error) {
	if n.Template == "" {
		return []byte(n.Text), "text/plain", nil
	}

	t, ok := m.templates[strings.ToLower(n.Template)]
	if !ok {
		return nil, "", domain.ErrNoTemplateSource
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, n.Data); err != nil {
		return nil, "", domain.Upstream(fmt.Errorf("render template %s: %w", n.Template, err))
	}
	return buf.Bytes(), "text/html", nil
}

func (m *Mailer) compose(n domain.Notification, ref, contentType string, body []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", n.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", n.Subject)
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", ref, m.cfg.Host)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s; charset=UTF-8\r\n\r\n", contentType)
	b.Write(body)
	return b.Bytes()
}
