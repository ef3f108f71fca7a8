package gateway

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway forwards chat messages into the session loop. Turns stay
// strictly serial: messages are handled one at a time in arrival order.
type TelegramGateway struct {
	bot       *tgbotapi.BotAPI
	assistant Assistant
}

func NewTelegramGateway(token string, assistant Assistant) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Printf("telegram gateway authorized as %s", bot.Self.UserName)

	return &TelegramGateway{bot: bot, assistant: assistant}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := tg.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			answer, err := tg.assistant.HandleUserTurn(ctx, update.Message.Text)
			if err != nil {
				log.Printf("telegram turn failed: %v", err)
				answer = "Sorry, something went wrong handling that."
			}

			msg := tgbotapi.NewMessage(update.Message.Chat.ID, answer)
			if _, err := tg.bot.Send(msg); err != nil {
				log.Printf("telegram send failed: %v", err)
			}
		}
	}
}

func (tg *TelegramGateway) Stop() error {
	tg.bot.StopReceivingUpdates()
	return nil
}
