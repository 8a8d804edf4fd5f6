package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// SMTPNotifier mails the uploader when a job fails permanently. Delivery is
// best-effort; the job is already parked on the DLQ by the time this runs.
type SMTPNotifier struct {
	addr   string
	from   string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		addr:   fmt.Sprintf("%s:%d", host, port),
		from:   from,
		logger: logger,
	}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, jobID, videoKey, errorMsg string) error {
	msg := n.compose(userEmail, jobID, videoKey, errorMsg)

	if err := smtp.SendMail(n.addr, nil, n.from, []string{userEmail}, msg); err != nil {
		n.logger.Error("failure notification not delivered",
			zap.String("to", userEmail),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification sent",
		zap.String("to", userEmail),
		zap.String("job_id", jobID),
	)
	return nil
}

func (n *SMTPNotifier) compose(to, jobID, videoKey, errorMsg string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Slide extraction failed [Job %s]\r\n\r\n", jobID)
	b.WriteString("Hello,\r\n\r\n")
	b.WriteString("Slide extraction for your video permanently failed after all retry attempts.\r\n\r\n")
	fmt.Fprintf(&b, "Job ID: %s\r\n", jobID)
	fmt.Fprintf(&b, "Video: %s\r\n", videoKey)
	fmt.Fprintf(&b, "Error: %s\r\n\r\n", errorMsg)
	b.WriteString("Please try uploading the video again or contact support.\r\n\r\n")
	b.WriteString("-- Slidecast Extraction Service\r\n")
	return []byte(b.String())
}
