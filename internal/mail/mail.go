// Package mail は確認コードなどのメール送信を提供する。
// 送信経路はSMTP直接送信、Kafka経由の外部メールサービス、ログ出力のいずれか。
package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/storefront/internal/metrics"
)

// Message は送信する1通のメール。
type Message struct {
	Subject string
	Body    string
	From    string
	To      []string
}

// Sender はメール送信のインターフェース。
// Sendが返るまでに送信が失敗した場合はエラーを返す。自動再送は行わない。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// 送信経路の識別子。MAIL_TRANSPORTの値として使う。
const (
	TransportSMTP  = "smtp"
	TransportKafka = "kafka"
	TransportLog   = "log"
)

// NewOTPMessage は確認コード通知メールを組み立てる。
func NewOTPMessage(from, to, code string, expiry time.Duration) Message {
	return Message{
		Subject: "Your OTP Code",
		Body: fmt.Sprintf(
			"Your OTP code is %s. It will expire in %d minutes.",
			code, int(expiry.Minutes()),
		),
		From: from,
		To:   []string{to},
	}
}

// instrumented は送信結果をメトリクスに記録するSender。
type instrumented struct {
	next      Sender
	transport string
	metrics   metrics.MetricsCollector
}

// WithMetrics はsenderの送信結果をtransportラベル付きで記録するSenderを返す。
func WithMetrics(sender Sender, transport string, m metrics.MetricsCollector) Sender {
	return &instrumented{next: sender, transport: transport, metrics: m}
}

func (s *instrumented) Send(ctx context.Context, msg Message) error {
	start := time.Now()
	if err := s.next.Send(ctx, msg); err != nil {
		s.metrics.RecordMailFailure(s.transport)
		return err
	}
	s.metrics.RecordMailSent(s.transport, time.Since(start))
	return nil
}
