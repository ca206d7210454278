// Package broadcast provides type-safe in-process message fan-out.
//
// Hub keeps one room per key, such as a recipient ID, and is what real-time
// socket delivery publishes to. Publishing never blocks: a subscription whose
// buffer is full is dropped and its channel closed.
//
// Basic usage:
//
//	hub := broadcast.NewHub[Event]()
//	defer hub.Close()
//
//	sub, err := hub.Subscribe(ctx, user.ID)
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
//	go func() {
//		for msg := range sub.Receive(ctx) {
//			conn.WriteJSON(msg.Data)
//		}
//	}()
//
//	delivered, err := hub.Publish(ctx, user.ID, Event{Name: "ping"})
//
// Subscribers are cleaned up when their context is cancelled, when their
// buffer fills, when the hub evicts the least recently used key to stay
// within its capacity, and when the hub is closed.
package broadcast
