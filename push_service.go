package main

import (
	"context"
	"log"
	"os"
	"strings"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"
)

// PushService delivers trade alerts to the mobile app through FCM
type PushService struct {
	client *messaging.Client
	app    *firebase.App
}

// 1. Define Message Structure
type PushMessage struct {
	Topic string
	Title string
	Body  string
}

// 2. Create Global Buffered Channel
var pushQueue = make(chan PushMessage, 500)

const tradeAlertTopic = "TRADE_ALERTS"

// NewPushService initializes FCM from the shared service account file
func NewPushService(credFile string) *PushService {
	// 1. Check for credentials file
	if _, err := os.Stat(credFile); os.IsNotExist(err) {
		log.Printf("⚠️ FCM: %s not found. Push notifications disabled.", credFile)
		return nil
	}

	// 2. Initialize Firebase App
	opt := option.WithCredentialsFile(credFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		log.Printf("⚠️ FCM: Error initializing app: %v", err)
		return nil
	}

	// 3. Get Messaging Client
	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("⚠️ FCM: Error getting messaging client: %v", err)
		return nil
	}

	log.Println("✅ FCM Push Service Initialized")
	return &PushService{
		client: client,
		app:    app,
	}
}

// 3. Worker Function (Call this in main.go)
func (ps *PushService) StartWorker() {
	log.Println("🚀 Push Worker Started")
	for msg := range pushQueue {
		// Construct FCM Message
		message := &messaging.Message{
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Topic: msg.Topic,
		}

		// Send Synchronously (Worker manages throughput)
		response, err := ps.client.Send(context.Background(), message)
		if err != nil {
			log.Printf("⚠️ FCM Send Error: %v", err)
		} else {
			log.Printf("📲 Push Sent: %s (MSG ID: %s)", msg.Body, response)
		}
	}
}

// Send queues a trade alert push. The first line of the message becomes the
// title. Safe on a nil service; a full queue drops the alert.
func (ps *PushService) Send(message string) {
	if ps == nil || ps.client == nil {
		return
	}

	title := message
	body := ""
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		title = message[:idx]
		body = message[idx+1:]
	}

	// Non-Blocking: Drop into channel
	select {
	case pushQueue <- PushMessage{
		Topic: tradeAlertTopic,
		Title: title,
		Body:  body,
	}:
		// Successfully queued
	default:
		// Queue full, drop message to prevent blocking main thread
		log.Println("⚠️ Push Queue Full! Dropping alert.")
	}
}
