package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"
)

// Listener relays a Postgres NOTIFY channel into a Hub.
type Listener struct {
	DSN     string
	Channel string
	Hub     *Hub
}

func (l *Listener) Run(ctx context.Context) error {
	channel := l.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	ln := pq.NewListener(l.DSN, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[NOTIFY] listener event=%d: %v\n", ev, err)
		}
	})
	defer ln.Close()

	if err := ln.Listen(channel); err != nil {
		return err
	}
	log.Printf("[NOTIFY] listening on %s\n", channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-ln.Notify:
			// nil after a reconnect; notifications sent meanwhile are lost
			if n == nil {
				continue
			}
			l.dispatch(n.Extra)
		case <-time.After(90 * time.Second):
			go func() { _ = ln.Ping() }()
		}
	}
}

func (l *Listener) dispatch(payload string) {
	n, err := Decode(payload)
	if err != nil {
		log.Printf("[NOTIFY] bad payload: %v\n", err)
		return
	}
	l.Hub.Publish(n)
}

func Decode(payload string) (Notification, error) {
	var n Notification
	err := json.Unmarshal([]byte(payload), &n)
	return n, err
}
