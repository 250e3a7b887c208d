package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"GProject/config"
	"GProject/logger"
	chat "GProject/module/chat"
	"GProject/service/session"
)

// chatprobe is a smoke client: connect, open a room, send one line and
// print the reconciled timeline.
func main() {
	api := flag.String("api", "http://localhost:8080", "REST base URL")
	ws := flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	token := flag.String("token", "", "bearer token (optional)")
	user := flag.String("user", "probe", "local user id")
	room := flag.String("room", "42", "room id")
	text := flag.String("text", "hello from chatprobe", "message to send")
	wait := flag.Duration("wait", 3*time.Second, "how long to watch the room")
	flag.Parse()

	cfg := config.Default()
	cfg.APIBaseURL = *api
	cfg.WebsocketURL = *ws
	cfg.Token = *token
	cfg.UserID = *user

	client, err := chat.New(cfg)
	if err != nil {
		logger.Errorf("build client: %v", err)
		return
	}
	client.OnState(func(s session.State) {
		logger.Infof("session state: %s", s)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	r := client.OpenRoom(ctx, *room)
	if *text != "" {
		r.Send(*text)
	}

	deadline := time.After(*wait)
	for {
		select {
		case <-r.Updates():
			// keep draining until the watch window closes
		case <-deadline:
			for _, m := range r.Messages() {
				fmt.Printf("%s  %-16s  %-18s  %s\n",
					m.CreatedAt.Format("15:04:05.000"), m.Sender, m.Origin, m.Content)
			}
			client.Close()
			return
		}
	}
}
