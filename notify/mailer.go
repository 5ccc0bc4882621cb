package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/logger"
)

// SMTPConfig configures the outgoing mail relay.
type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

// header injection guard
var crlfReplacer = strings.NewReplacer("\r\n", "", "\r", "", "\n", "")

// Mailer sends notices over SMTP. With no username and password it speaks
// to the relay unauthenticated, which is what plant-local relays expect.
type Mailer struct {
	cfg SMTPConfig
	log *zap.SugaredLogger
}

// NewMailer creates an SMTP-backed notifier.
func NewMailer(cfg SMTPConfig, log *zap.SugaredLogger) *Mailer {
	return &Mailer{cfg: cfg, log: logger.AddMailSymbol(log)}
}

var _ Notifier = (*Mailer)(nil)

// Send delivers the notice to every recipient in one message.
func (m *Mailer) Send(ctx context.Context, notice Notice) error {
	if len(notice.Recipients) == 0 {
		m.log.Debugw("No recipients for notice, skipping",
			logger.FieldPMID, notice.PMID)
		return nil
	}

	subject := fmt.Sprintf("Upcoming maintenance: %s", crlfReplacer.Replace(notice.PMTitle))
	body := fmt.Sprintf(
		"Maintenance %q is due on %s.\r\nA work order will be generated shortly.\r\n",
		notice.PMTitle, notice.DueAt.Format("Mon, 02 Jan 2006 15:04"),
	)

	to := make([]string, 0, len(notice.Recipients))
	for _, r := range notice.Recipients {
		to = append(to, crlfReplacer.Replace(r))
	}

	msg := m.compose(to, subject, body)
	addr := m.cfg.Host + ":" + m.cfg.Port

	var err error
	if m.cfg.Username == "" && m.cfg.Password == "" {
		err = smtp.SendMail(addr, nil, m.cfg.From, to, msg)
	} else {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		err = smtp.SendMail(addr, auth, m.cfg.From, to, msg)
	}
	if err != nil {
		return errors.Wrapf(err, "send notice for %s", notice.PMID)
	}

	m.log.Infow("Notice sent",
		logger.FieldPMID, notice.PMID,
		"recipients", len(to),
		"due_at", notice.DueAt.Format(time.RFC3339))
	return nil
}

func (m *Mailer) compose(to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("To: " + strings.Join(to, ",") + "\r\n")
	b.WriteString("From: " + crlfReplacer.Replace(m.cfg.From) + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// LogNotifier writes notices to the log instead of a mail relay. It is the
// default when no SMTP host is configured.
type LogNotifier struct {
	log *zap.SugaredLogger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: logger.AddMailSymbol(log)}
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Send(ctx context.Context, notice Notice) error {
	n.log.Infow("Upcoming maintenance",
		logger.FieldPMID, notice.PMID,
		"title", notice.PMTitle,
		"due_at", notice.DueAt.Format(time.RFC3339),
		"recipients", strings.Join(notice.Recipients, ","))
	return nil
}
