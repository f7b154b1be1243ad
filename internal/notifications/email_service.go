package notifications

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"
	"strconv"
	"time"
)

// EmailService interface for sending waitlist emails
type EmailService interface {
	SendTicketsAvailable(ctx context.Context, message *TicketsAvailableMessage) error
	SendHTML(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	UseTLS    bool
	Timeout   time.Duration
}

// SMTPEmailService delivers notifications over SMTP with STARTTLS
type SMTPEmailService struct {
	config       *SMTPConfig
	ticketsAvail *template.Template
}

var ticketsAvailableHTML = template.Must(template.New("tickets_available").Parse(`
<h2>Tickets are available</h2>
<p>Hi {{.RecipientName}},</p>
<p>Tickets for <strong>{{.EventTitle}}</strong> ({{.TicketTypeName}}) are now available for you.</p>
<p>You have until <strong>{{.ExpiresAt.Format "Mon, 02 Jan 2006 15:04 MST"}}</strong> to complete your purchase before your spot is released.</p>
<p>GVTEWAY</p>
`))

// NewSMTPEmailService creates a new SMTP email service
func NewSMTPEmailService(config *SMTPConfig) (*SMTPEmailService, error) {
	if err := validateSMTPConfig(config); err != nil {
		return nil, fmt.Errorf("invalid SMTP configuration: %w", err)
	}

	return &SMTPEmailService{
		config:       config,
		ticketsAvail: ticketsAvailableHTML,
	}, nil
}

func validateSMTPConfig(config *SMTPConfig) error {
	if config == nil {
		return fmt.Errorf("SMTP config is nil")
	}
	if config.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("SMTP port must be between 1 and 65535")
	}
	if config.FromEmail == "" {
		return fmt.Errorf("from email is required")
	}
	return nil
}

// SendTicketsAvailable renders and sends the tickets-available email
func (s *SMTPEmailService) SendTicketsAvailable(ctx context.Context, message *TicketsAvailableMessage) error {
	var htmlBuf bytes.Buffer
	if err := s.ticketsAvail.Execute(&htmlBuf, message); err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	textBody := fmt.Sprintf(
		"Hi %s,\n\nTickets for %s (%s) are now available for you.\nYou have until %s to complete your purchase before your spot is released.\n\nGVTEWAY",
		message.RecipientName,
		message.EventTitle,
		message.TicketTypeName,
		message.ExpiresAt.Format(time.RFC1123),
	)

	subject := fmt.Sprintf("Tickets available for %s", message.EventTitle)
	return s.SendHTML(ctx, message.RecipientEmail, subject, htmlBuf.String(), textBody)
}

// SendHTML sends a multipart HTML email
func (s *SMTPEmailService) SendHTML(ctx context.Context, to, subject, htmlBody, textBody string) error {
	message := s.buildMessage(to, subject, htmlBody, textBody)

	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var err error
	if s.config.UseTLS {
		err = s.sendWithSTARTTLS(addr, auth, to, message)
	} else {
		err = smtp.SendMail(addr, auth, s.config.FromEmail, []string{to}, message)
	}

	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *SMTPEmailService) sendWithSTARTTLS(addr string, auth smtp.Auth, to string, message []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Quit()

	tlsconfig := &tls.Config{
		InsecureSkipVerify: false,
		ServerName:         s.config.Host,
	}

	if err = client.StartTLS(tlsconfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err = client.Mail(s.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}

	if _, err = w.Write(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return w.Close()
}

func (s *SMTPEmailService) buildMessage(to, subject, htmlBody, textBody string) []byte {
	boundary := "boundary_" + strconv.FormatInt(time.Now().UnixNano(), 10)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s <%s>\r\n", s.config.FromName, s.config.FromEmail)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n", boundary)
	buf.WriteString("\r\n")

	if textBody != "" {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(textBody + "\r\n")
	}

	if htmlBody != "" {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		buf.WriteString(htmlBody + "\r\n")
	}

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

// MockEmailService logs instead of delivering, for local development
// without SMTP credentials
type MockEmailService struct{}

func NewMockEmailService() *MockEmailService {
	return &MockEmailService{}
}

func (s *MockEmailService) SendTicketsAvailable(ctx context.Context, message *TicketsAvailableMessage) error {
	fmt.Printf("[MOCK EMAIL] tickets available: to=%s event=%s expires=%s\n",
		message.RecipientEmail, message.EventTitle, message.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (s *MockEmailService) SendHTML(ctx context.Context, to, subject, htmlBody, textBody string) error {
	fmt.Printf("[MOCK EMAIL] to=%s subject=%s\n", to, subject)
	return nil
}
