package mail

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// KafkaConfig はKafka経由のメール送信設定。
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	Username string // 空の場合はSASL認証を使わない
	Password string
	TLS      bool
}

// messageWriter はkafka.Writerのうち送信に使う部分。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// mailEvent は外部メールサービスが購読するトピックに書き込むイベント。
type mailEvent struct {
	Type    string    `json:"type"`
	From    string    `json:"from"`
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// KafkaSender はメール送信イベントをKafkaトピックへ同期的に書き込むSender。
// 全レプリカへの書き込み完了を待つため、Sendの成功は配送要求の永続化を意味する。
type KafkaSender struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaSender はKafkaSenderを生成する。
func NewKafkaSender(cfg KafkaConfig) *KafkaSender {
	transport := &kafka.Transport{}
	if cfg.Username != "" {
		transport.SASL = plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.TLS {
		transport.TLS = &tls.Config{}
	}

	return &KafkaSender{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			Transport:    transport,
			WriteTimeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// Send はメール送信イベントを書き込む。
// 宛先をキーにするため、同じ宛先へのメールは同じパーティションで順序が保たれる。
func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mail has no recipients")
	}

	value, err := json.Marshal(mailEvent{
		Type:    "mail.send",
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Body:    msg.Body,
		SentAt:  s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode mail event: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strings.ToLower(msg.To[0])),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish mail event: %w", err)
	}
	return nil
}

// Close はライターを閉じる。
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
