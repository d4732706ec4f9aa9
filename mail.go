package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net/textproto"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// ==== Envio de e-mail (SMTP) ====

var emailTpl = template.Must(template.ParseFS(tplFS, "templates/email/*.gohtml"))

// Notification é o e-mail já composto: assunto, texto simples e HTML.
type Notification struct {
	Subject    string
	Text       string
	HTML       string
	Documentos int
}

const introInconsistencias = "Foram detectadas as seguintes inconsistências em notas fiscais que estão 'Canceladas' na Prefeitura, mas 'Normais' (ativas) no sistema UAU. Favor verificar:"

// composeNotification monta as duas versões do corpo a partir das inconsistências.
func composeNotification(t Table, cfg MailConfig) (Notification, error) {
	n := Notification{
		Subject:    fmt.Sprintf("[Ação Necessária] Inconsistências de NF Canceladas (%d documentos)", t.Len()),
		Documentos: t.Len(),
	}

	var txt strings.Builder
	txt.WriteString("Prezados(as),\n\n")
	txt.WriteString(introInconsistencias + "\n\n")
	txt.WriteString(renderTextTable(t))
	fmt.Fprintf(&txt, "\n\nAtenciosamente,\nRelatório Automático (Enviado por %s)\n", cfg.Remetente)
	txt.WriteString("Favor não responder este e-mail, pois ele é gerado automaticamente.\n")
	if cfg.ResponderPara != "" {
		fmt.Fprintf(&txt, "Se necessário, favor responder ao e-mail: %s\n", cfg.ResponderPara)
	}
	n.Text = txt.String()

	var html bytes.Buffer
	err := emailTpl.ExecuteTemplate(&html, "email.gohtml", map[string]any{
		"Intro":         introInconsistencias,
		"Header":        t.Header,
		"Rows":          t.Rows,
		"Remetente":     cfg.Remetente,
		"ResponderPara": cfg.ResponderPara,
	})
	if err != nil {
		return Notification{}, fmt.Errorf("compor html: %w", err)
	}
	n.HTML = html.String()
	return n, nil
}

func renderTextTable(t Table) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.Header...).
		Rows(t.Rows...).
		String()
}

// buildMessage monta a mensagem multipart/alternative (texto + HTML).
func buildMessage(cfg MailConfig, n Notification, now time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8), mail.WithEncoding(mail.EncodingQP))
	if err := msg.From(cfg.Remetente); err != nil {
		return nil, fmt.Errorf("remetente: %w", err)
	}
	if err := msg.To(cfg.Destinatarios...); err != nil {
		return nil, fmt.Errorf("destinatários: %w", err)
	}
	if cfg.ResponderPara != "" {
		if err := msg.ReplyTo(cfg.ResponderPara); err != nil {
			return nil, fmt.Errorf("responder para: %w", err)
		}
	}
	msg.Subject(n.Subject)
	msg.SetDateWithValue(now)

	domain := "localhost"
	if at := strings.LastIndex(cfg.Remetente, "@"); at >= 0 {
		domain = cfg.Remetente[at+1:]
	}
	msg.SetMessageIDWithValue(uuid.NewString() + "@" + domain)

	msg.SetBodyString(mail.TypeTextPlain, n.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, n.HTML)
	return msg, nil
}

// mailer envia notificações pela sessão SMTP autenticada.
type mailer struct {
	cfg MailConfig
	// dial substitui a conexão TCP/TLS do go-mail; nil usa a dele.
	dial mail.DialContextFunc
	now  func() time.Time
}

func newMailer(cfg MailConfig) *mailer {
	return &mailer{cfg: cfg, now: time.Now}
}

// client configura o cliente go-mail: TLS implícito na 465, STARTTLS quando o servidor oferece.
func (m *mailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Porta),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Remetente),
		mail.WithPassword(m.cfg.Senha),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(&tls.Config{ServerName: m.cfg.Servidor, MinVersion: tls.VersionTLS12}),
	}
	if m.cfg.Porta == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}
	if m.dial != nil {
		opts = append(opts, mail.WithDialContextFunc(m.dial))
	}
	return mail.NewClient(m.cfg.Servidor, opts...)
}

// Send devolve *ConfigError, *MailError{Auth: true} ou *MailError de transporte.
func (m *mailer) Send(ctx context.Context, n Notification) error {
	if err := m.cfg.Validate(); err != nil {
		return err
	}
	msg, err := buildMessage(m.cfg, n, m.now())
	if err != nil {
		return &MailError{Op: "compor", Err: err}
	}
	c, err := m.client()
	if err != nil {
		return &MailError{Op: "configurar", Err: err}
	}

	// a conexão inclui EHLO, STARTTLS e AUTH
	sc, err := c.DialToSMTPClientWithContext(ctx)
	if err != nil {
		if isAuthFailure(err) {
			return &MailError{Auth: true, Op: "autenticar", Err: err}
		}
		return &MailError{Op: "conectar", Err: err}
	}
	defer func() { _ = c.CloseWithSMTPClient(sc) }()

	if err := c.SendWithSMTPClient(sc, msg); err != nil {
		return &MailError{Op: sendOp(err), Err: err}
	}
	if err := c.CloseWithSMTPClient(sc); err != nil {
		return &MailError{Op: "quit", Err: err}
	}
	return nil
}

// isAuthFailure reconhece as respostas SMTP de credenciais recusadas.
func isAuthFailure(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535, 538:
			return true
		}
	}
	return false
}

// sendOp traduz o motivo do go-mail para a etapa mostrada ao usuário.
func sendOp(err error) string {
	var se *mail.SendError
	if !errors.As(err, &se) {
		return "enviar"
	}
	switch se.Reason {
	case mail.ErrSMTPMailFrom:
		return "remetente"
	case mail.ErrSMTPRcptTo:
		return "destinatário"
	case mail.ErrSMTPData, mail.ErrWriteContent, mail.ErrSMTPDataClose:
		return "data"
	case mail.ErrConnCheck:
		return "conectar"
	default:
		return "enviar"
	}
}
