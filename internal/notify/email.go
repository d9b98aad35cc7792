package notify

import (
	"context"
	"fmt"

	mail "github.com/go-mail/mail"

	"pengajuan-service/internal/config"
	"pengajuan-service/internal/models"
)

// EmailChannel delivers status notifications over SMTP.
type EmailChannel struct {
	config config.SMTPConfig
}

func NewEmailChannel(cfg *config.Config) *EmailChannel {
	return &EmailChannel{config: cfg.SMTP}
}

func (c *EmailChannel) Name() string {
	return models.ChannelEmail
}

func (c *EmailChannel) Configured() bool {
	return c.config.Host != "" && c.config.Username != "" && c.config.Password != ""
}

func (c *EmailChannel) Send(ctx context.Context, record models.SubmissionRecord, customText string) error {
	if record.Form.Email == "" {
		return fmt.Errorf("submission %s has no email address", record.ID)
	}

	subject, text := statusMessage(record, customText)

	m := mail.NewMessage()
	m.SetHeader("From", m.FormatAddress(c.config.FromEmail, c.config.FromName))
	m.SetHeader("To", record.Form.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", fmt.Sprintf(
		"<p>Yth. %s,</p><p>%s</p><p>Kode referensi: <b>%s</b></p>",
		record.Form.FullName, text, record.ReferenceCode))

	d := mail.NewDialer(c.config.Host, c.config.Port, c.config.Username, c.config.Password)

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	}
}

// statusMessage builds the notification subject and body for a decided
// submission. Custom text from staff replaces the default body.
func statusMessage(record models.SubmissionRecord, customText string) (subject, text string) {
	switch record.Status {
	case models.StatusApproved:
		subject = fmt.Sprintf("Pengajuan %s Disetujui", record.ReferenceCode)
		text = fmt.Sprintf("Pengajuan tabungan Anda dengan kode referensi %s telah disetujui.", record.ReferenceCode)
	case models.StatusRejected:
		subject = fmt.Sprintf("Pengajuan %s Ditolak", record.ReferenceCode)
		text = fmt.Sprintf("Mohon maaf, pengajuan tabungan Anda dengan kode referensi %s belum dapat disetujui.", record.ReferenceCode)
	default:
		subject = fmt.Sprintf("Status Pengajuan %s", record.ReferenceCode)
		text = fmt.Sprintf("Status pengajuan Anda dengan kode referensi %s telah diperbarui menjadi %s.", record.ReferenceCode, record.Status)
	}

	if customText != "" {
		text = customText
	}
	return subject, text
}
