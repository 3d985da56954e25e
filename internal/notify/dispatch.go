package notify

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vladse1/CHP/internal/model"
	"github.com/vladse1/CHP/pkg/telegram"
)

// Dispatcher delivers one formatted message per newly discovered incident.
// Sends are sequential in discovery order; there is no queueing.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec *model.IncidentRecord, text string) error
}

// TelegramDispatcher sends through the Bot API to one configured chat.
type TelegramDispatcher struct {
	bot            telegram.Client
	chatID         string
	disablePreview bool
}

// NewTelegramDispatcher creates a dispatcher for the given chat.
func NewTelegramDispatcher(bot telegram.Client, chatID string, disablePreview bool) *TelegramDispatcher {
	return &TelegramDispatcher{bot: bot, chatID: chatID, disablePreview: disablePreview}
}

func (d *TelegramDispatcher) Dispatch(ctx context.Context, rec *model.IncidentRecord, text string) error {
	opts := []telegram.SendOption{telegram.WithParseMode(telegram.ParseModeHTML)}
	if d.disablePreview {
		opts = append(opts, telegram.WithoutPreview())
	}

	msgID, err := d.bot.SendMessage(ctx, d.chatID, text, opts...)
	if err != nil {
		return eris.Wrapf(err, "notify: send incident %s", rec.Number)
	}

	zap.L().Debug("incident message sent",
		zap.String("incident", rec.Number),
		zap.String("center", rec.CommCenter),
		zap.Int64("message_id", msgID))
	return nil
}

// LogDispatcher logs messages instead of sending them, for dry runs.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, rec *model.IncidentRecord, text string) error {
	zap.L().Info("dry-run dispatch",
		zap.String("incident", rec.Number),
		zap.String("center", rec.CommCenter),
		zap.String("text", text))
	return nil
}
