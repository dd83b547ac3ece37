package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/mikey/llm-email-analyzer/internal/adapters/source"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/mikey/llm-email-analyzer/internal/exclusion"
	"github.com/mikey/llm-email-analyzer/internal/metrics"
	"go.uber.org/zap"
)

var errQueueFull = &smtp.SMTPError{
	Code:         451,
	EnhancedCode: smtp.EnhancedCode{4, 3, 1},
	Message:      "Analysis queue is full, try again later",
}

// SMTPIntake accepts messages over SMTP and analyzes them one at a time
type SMTPIntake struct {
	runner          *core.BatchRunner
	checker         *exclusion.Checker
	logger          *zap.Logger
	listenAddr      string
	domain          string
	maxMessageBytes int64
	delay           time.Duration

	server   *smtp.Server
	listener net.Listener
	queue    chan core.EmailInput
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	newID    func() string
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSMTPIntake creates a new SMTP intake
func NewSMTPIntake(
	runner *core.BatchRunner,
	checker *exclusion.Checker,
	logger *zap.Logger,
	listenAddr string,
	domain string,
	queueSize int,
	maxMessageBytes int64,
	interRequestDelay time.Duration,
) *SMTPIntake {
	if queueSize < 1 {
		queueSize = 1
	}
	if domain == "" {
		domain = "localhost"
	}

	return &SMTPIntake{
		runner:          runner,
		checker:         checker,
		logger:          logger,
		listenAddr:      listenAddr,
		domain:          domain,
		maxMessageBytes: maxMessageBytes,
		delay:           interRequestDelay,
		queue:           make(chan core.EmailInput, queueSize),
		newID:           uuid.NewString,
		sleep:           sleepContext,
	}
}

// Start binds the listener and starts the server and the analysis worker
func (i *SMTPIntake) Start() error {
	listener, err := net.Listen("tcp", i.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", i.listenAddr, err)
	}
	i.listener = listener

	i.server = smtp.NewServer(&smtpBackend{intake: i})
	i.server.Addr = listener.Addr().String()
	i.server.Domain = i.domain
	i.server.ReadTimeout = 30 * time.Second
	i.server.WriteTimeout = 30 * time.Second
	i.server.MaxMessageBytes = i.maxMessageBytes
	i.server.MaxRecipients = 50
	i.server.AllowInsecureAuth = true

	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel

	i.wg.Add(1)
	go i.work(ctx)

	i.logger.Info("SMTP intake starting",
		zap.String("address", i.server.Addr),
		zap.Int("queue_size", cap(i.queue)))

	go func() {
		if err := i.server.Serve(listener); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			i.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop closes the server and waits for the in-flight analysis to end.
// Messages still queued are dropped.
func (i *SMTPIntake) Stop() error {
	var err error
	if i.server != nil {
		err = i.server.Close()
	}
	if i.cancel != nil {
		i.cancel()
	}
	i.wg.Wait()

	if dropped := len(i.queue); dropped > 0 {
		i.logger.Warn("Dropping queued messages on shutdown", zap.Int("count", dropped))
	}
	return err
}

// Addr returns the bound address, useful when listening on port 0
func (i *SMTPIntake) Addr() string {
	if i.listener == nil {
		return i.listenAddr
	}
	return i.listener.Addr().String()
}

func (i *SMTPIntake) enqueue(email core.EmailInput) error {
	select {
	case i.queue <- email:
		metrics.IntakeQueueDepth.Inc()
		return nil
	default:
		return errQueueFull
	}
}

// work analyzes queued messages one at a time, pausing for the configured
// delay between consecutive model requests
func (i *SMTPIntake) work(ctx context.Context) {
	defer i.wg.Done()
	processed := false
	for {
		select {
		case <-ctx.Done():
			return
		case email := <-i.queue:
			metrics.IntakeQueueDepth.Dec()
			if processed && i.delay > 0 {
				if err := i.sleep(ctx, i.delay); err != nil {
					return
				}
			}
			processed = true

			stats, err := i.runner.RunBatch(ctx, []core.EmailInput{email})
			if err != nil {
				i.logger.Warn("Analysis interrupted", zap.String("email_id", email.ID), zap.Error(err))
				continue
			}

			fields := []zap.Field{
				zap.String("email_id", email.ID),
				zap.String("run_id", stats.RunID),
				zap.Int("succeeded", stats.Succeeded),
				zap.Int("failed", stats.Failed),
				zap.Duration("duration", stats.Duration()),
			}
			if len(stats.Failures) > 0 {
				fields = append(fields, zap.String("kind", stats.Failures[0].Kind))
			}
			i.logger.Info("Processed email", fields...)
		}
	}
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	intake *SMTPIntake
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{intake: b.intake}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	intake     *SMTPIntake
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data parses the message and queues it for analysis
func (s *smtpSession) Data(r io.Reader) error {
	logger := s.intake.logger

	raw, err := io.ReadAll(r)
	if err != nil {
		logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	email, err := source.ParseMessage(bytes.NewReader(raw), s.intake.newID)
	if err != nil {
		logger.Warn("Rejecting unparseable message", zap.String("sender", s.sender), zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}
	if email.Sender == "" {
		email.Sender = s.sender
	}

	if s.intake.checker.IsExcluded(s.sender) || s.intake.checker.IsExcluded(email.Sender) {
		logger.Debug("Accepted message from excluded sender without analysis",
			zap.String("email_id", email.ID),
			zap.String("sender", email.Sender))
		return nil
	}

	if err := s.intake.enqueue(email); err != nil {
		logger.Warn("Analysis queue full", zap.String("email_id", email.ID))
		return err
	}

	logger.Debug("Queued message",
		zap.String("email_id", email.ID),
		zap.String("sender", email.Sender),
		zap.Strings("recipients", s.recipients))
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
