package mail

import (
	"context"
	"log/slog"
	"strings"
)

// LogSender はメールを送信せず構造化ログに出力するSender。開発環境用。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender はLogSenderを生成する。
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send はメッセージをログに出力する。
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail (log transport)",
		slog.String("from", msg.From),
		slog.String("to", strings.Join(msg.To, ",")),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
