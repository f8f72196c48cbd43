package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const chatIDFile = "chat_id.txt"

// NotificationService handles sending trade alerts to Telegram
type NotificationService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewNotificationService initializes the Telegram bot
func NewNotificationService(token, chatIDStr string) *NotificationService {
	if token == "" {
		log.Println("⚠️ TELEGRAM_BOT_TOKEN not found. Notifications disabled.")
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("⚠️ Failed to init Telegram Bot: %v", err)
		return nil
	}

	log.Printf("✅ Authorized on account %s", bot.Self.UserName)

	var chatID int64
	if chatIDStr != "" {
		chatID, _ = strconv.ParseInt(chatIDStr, 10, 64)
	}

	ns := &NotificationService{
		bot:    bot,
		chatID: chatID,
	}

	// If no Chat ID, try loading from file
	if chatID == 0 {
		ns.chatID = ns.loadChatID()
	}
	if ns.chatID != 0 {
		log.Printf("✅ Loaded Persistent Chat ID: %d", ns.chatID)
	}

	return ns
}

// loadChatID reads the saved ID from file
func (ns *NotificationService) loadChatID() int64 {
	data, err := os.ReadFile(chatIDFile)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// saveChatID writes ID to file
func (ns *NotificationService) saveChatID(id int64) {
	err := os.WriteFile(chatIDFile, []byte(fmt.Sprintf("%d", id)), 0644)
	if err != nil {
		log.Printf("⚠️ Failed to save Chat ID: %v", err)
	} else {
		log.Println("💾 Chat ID Saved Persistently.")
	}
}

// StartEventListener polls updates for commands. The status callback renders
// the current position and wallet; the stop callback halts the engine.
func (ns *NotificationService) StartEventListener(statusCallback func() string, stopCallback func()) {
	if ns == nil || ns.bot == nil {
		return
	}
	log.Println("📢 TELEGRAM: Listening for events...")
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := ns.bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		// Auto-Configure Chat ID
		if ns.chatID == 0 {
			ns.chatID = update.Message.Chat.ID
			ns.saveChatID(ns.chatID)
			log.Printf("✅ TELEGRAM CHAT ID DETECTED: %d", ns.chatID)
			ns.Send("🔔 Bot Connected! Trade alerts enabled.")
		}

		if !update.Message.IsCommand() {
			continue
		}

		switch update.Message.Command() {
		case "status":
			if statusCallback != nil {
				ns.Send(statusCallback())
			}
		case "start":
			if ns.chatID != update.Message.Chat.ID {
				ns.chatID = update.Message.Chat.ID
				ns.saveChatID(ns.chatID)
				log.Printf("✅ TELEGRAM CHAT ID CAPTURED & SAVED: %d", ns.chatID)
			}
			ns.Send("🚀 *Connection established!*\nI am now watching the market and will alert you on every position change.")
		case "stop":
			ns.Send("🛑 **EMERGENCY STOP TRIGGERED**\nHalting decision loop.\nOpen positions stay protected by the trigger monitor.")
			if stopCallback != nil {
				stopCallback()
			}
		}
	}
}

// Send delivers a message asynchronously. Safe on a nil service.
func (ns *NotificationService) Send(msg string) {
	if ns == nil || ns.bot == nil || ns.chatID == 0 {
		return
	}

	// Fire and forget
	go func() {
		msgConfig := tgbotapi.NewMessage(ns.chatID, msg)
		msgConfig.ParseMode = "Markdown"
		if _, err := ns.bot.Send(msgConfig); err != nil {
			log.Printf("⚠️ Failed to send Telegram: %v", err)
		}
	}()
}
