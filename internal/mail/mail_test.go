package mail

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hitoshi/storefront/internal/metrics"
)

func TestNewOTPMessage(t *testing.T) {
	msg := NewOTPMessage("shop@example.com", "alice@example.com", "042917", time.Hour)

	if msg.From != "shop@example.com" {
		t.Errorf("From = %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "alice@example.com" {
		t.Errorf("To = %v", msg.To)
	}
	if !strings.Contains(msg.Body, "042917") {
		t.Errorf("本文にコードが含まれていない: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "60 minutes") {
		t.Errorf("本文に有効期限が含まれていない: %q", msg.Body)
	}
}

// smtpSession はfakeSMTPServerが受け取った内容。
type smtpSession struct {
	from string
	rcpt []string
	data string
}

// fakeSMTPServer はSTARTTLSとAUTHを提供しない最小限のSMTPサーバー。
func fakeSMTPServer(t *testing.T, rejectRcpt bool) (string, int, <-chan smtpSession) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	done := make(chan smtpSession, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		var sess smtpSession
		tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				done <- sess
				return
			}
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				tp.PrintfLine("250 localhost")
			case strings.HasPrefix(cmd, "MAIL FROM:"):
				sess.from = strings.Trim(line[len("MAIL FROM:"):], "<> ")
				tp.PrintfLine("250 OK")
			case strings.HasPrefix(cmd, "RCPT TO:"):
				if rejectRcpt {
					tp.PrintfLine("550 no such user")
					continue
				}
				sess.rcpt = append(sess.rcpt, strings.Trim(line[len("RCPT TO:"):], "<> "))
				tp.PrintfLine("250 OK")
			case cmd == "DATA":
				tp.PrintfLine("354 go ahead")
				lines, _ := tp.ReadDotLines()
				sess.data = strings.Join(lines, "\n")
				tp.PrintfLine("250 queued")
			case cmd == "QUIT":
				tp.PrintfLine("221 bye")
				done <- sess
				return
			default:
				tp.PrintfLine("250 OK")
			}
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port, done
}

func TestSMTPSender_Send(t *testing.T) {
	host, port, done := fakeSMTPServer(t, false)
	sender := NewSMTPSender(SMTPConfig{Host: host, Port: port, Timeout: 5 * time.Second})

	msg := NewOTPMessage("shop@example.com", "alice@example.com", "123456", time.Hour)
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send がエラーを返した: %v", err)
	}

	sess := <-done
	if sess.from != "shop@example.com" {
		t.Errorf("MAIL FROM = %q", sess.from)
	}
	if len(sess.rcpt) != 1 || sess.rcpt[0] != "alice@example.com" {
		t.Errorf("RCPT TO = %v", sess.rcpt)
	}
	if !strings.Contains(sess.data, "Subject: Your OTP Code") || !strings.Contains(sess.data, "123456") {
		t.Errorf("DATA = %q", sess.data)
	}
}

func TestSMTPSender_Send_RecipientRejected(t *testing.T) {
	host, port, _ := fakeSMTPServer(t, true)
	sender := NewSMTPSender(SMTPConfig{Host: host, Port: port, Timeout: 5 * time.Second})

	err := sender.Send(context.Background(), NewOTPMessage("shop@example.com", "ghost@example.com", "123456", time.Hour))
	if err == nil {
		t.Fatal("宛先拒否でエラーにならなかった")
	}
}

func TestSMTPSender_Send_ConnectionRefused(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	sender := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second})
	if err := sender.Send(context.Background(), NewOTPMessage("a@example.com", "b@example.com", "1", time.Hour)); err == nil {
		t.Fatal("接続失敗でエラーにならなかった")
	}
}

func TestSMTPSender_Send_NoRecipients(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1})
	if err := sender.Send(context.Background(), Message{From: "a@example.com"}); err == nil {
		t.Fatal("宛先なしでエラーにならなかった")
	}
}

// fakeWriter はmessageWriterのモック。
type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSender_Send_PublishesEvent(t *testing.T) {
	w := &fakeWriter{}
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	sender := &KafkaSender{writer: w, now: func() time.Time { return fixed }}

	msg := NewOTPMessage("shop@example.com", "Alice@Example.com", "654321", time.Hour)
	if err := sender.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send がエラーを返した: %v", err)
	}

	if len(w.messages) != 1 {
		t.Fatalf("書き込まれたメッセージ数 = %d, want 1", len(w.messages))
	}
	if string(w.messages[0].Key) != "alice@example.com" {
		t.Errorf("Key = %q", w.messages[0].Key)
	}

	var ev mailEvent
	if err := json.Unmarshal(w.messages[0].Value, &ev); err != nil {
		t.Fatalf("イベントのデコードに失敗: %v", err)
	}
	if ev.Type != "mail.send" || ev.Subject != msg.Subject || ev.Body != msg.Body || !ev.SentAt.Equal(fixed) {
		t.Errorf("イベントが不正: %+v", ev)
	}

	sender.Close()
	if !w.closed {
		t.Error("Close がライターに伝播していない")
	}
}

func TestKafkaSender_Send_PublishFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	sender := &KafkaSender{writer: w, now: time.Now}

	if err := sender.Send(context.Background(), NewOTPMessage("a@example.com", "b@example.com", "1", time.Hour)); err == nil {
		t.Fatal("書き込み失敗でエラーにならなかった")
	}
}

func TestNewKafkaSender_ConfiguresWriter(t *testing.T) {
	sender := NewKafkaSender(KafkaConfig{
		Brokers:  []string{"broker:9092"},
		Topic:    "mail.outbound",
		Username: "user",
		Password: "pass",
		TLS:      true,
	})
	w, ok := sender.writer.(*kafka.Writer)
	if !ok {
		t.Fatalf("writer の型 = %T", sender.writer)
	}
	if w.Topic != "mail.outbound" || w.RequiredAcks != kafka.RequireAll || w.Async {
		t.Errorf("Writer 設定が不正: topic=%s acks=%v async=%v", w.Topic, w.RequiredAcks, w.Async)
	}
	tr, ok := w.Transport.(*kafka.Transport)
	if !ok || tr.SASL == nil || tr.TLS == nil {
		t.Errorf("Transport にSASL/TLSが設定されていない: %+v", w.Transport)
	}
}

func TestLogSender_Send(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sender := NewLogSender(logger)

	if err := sender.Send(context.Background(), NewOTPMessage("a@example.com", "b@example.com", "111222", time.Hour)); err != nil {
		t.Fatalf("Send がエラーを返した: %v", err)
	}

	var entry map[string]any
	if err := json.NewDecoder(bufio.NewReader(&buf)).Decode(&entry); err != nil {
		t.Fatalf("ログのデコードに失敗: %v", err)
	}
	if entry["to"] != "b@example.com" || !strings.Contains(entry["body"].(string), "111222") {
		t.Errorf("ログ内容が不正: %v", entry)
	}
}

// stubSender はSenderのモック。
type stubSender struct {
	err error
}

func (s stubSender) Send(ctx context.Context, msg Message) error { return s.err }

// recordingMetrics はメール関連メトリクスの呼び出しを記録する。
type recordingMetrics struct {
	metrics.Nop
	sent   []string
	failed []string
}

func (m *recordingMetrics) RecordMailSent(transport string, d time.Duration) {
	m.sent = append(m.sent, transport)
}

func (m *recordingMetrics) RecordMailFailure(transport string) {
	m.failed = append(m.failed, transport)
}

func TestWithMetrics(t *testing.T) {
	m := &recordingMetrics{}

	ok := WithMetrics(stubSender{}, TransportSMTP, m)
	if err := ok.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("Send がエラーを返した: %v", err)
	}
	ng := WithMetrics(stubSender{err: errors.New("boom")}, TransportKafka, m)
	if err := ng.Send(context.Background(), Message{}); err == nil {
		t.Fatal("エラーが伝播しなかった")
	}

	if len(m.sent) != 1 || m.sent[0] != TransportSMTP {
		t.Errorf("sent = %v", m.sent)
	}
	if len(m.failed) != 1 || m.failed[0] != TransportKafka {
		t.Errorf("failed = %v", m.failed)
	}
}
