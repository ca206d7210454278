// Package dispatcher delivers rendered notifications over email, push and
// socket channels behind a single Dispatcher interface.
//
// A Factory resolves dispatchers by channel. Asking for a channel that was
// never registered returns ErrUnsupportedChannel; every other failure is
// reported in the notifications.DispatchResult returned by Send, so callers
// can classify it as retryable or permanent.
//
//	factory := dispatcher.NewFactory(
//		dispatcher.WithTimeout(10*time.Second),
//		dispatcher.WithDispatchers(
//			dispatcher.NewEmail(emailCfg),
//			dispatcher.NewPush(pushCfg, publisher),
//			dispatcher.NewSocket(hub),
//		),
//	)
//
//	res, err := factory.Send(ctx, notifications.ChannelEmail, dispatcher.Message{
//		Title:    "Welcome",
//		Body:     body,
//		Metadata: tpl.Metadata,
//		Payload:  payload,
//	})
//
// Template metadata header values act as per-channel directives:
//
//	email:  from, reply_to, subject, tag, to
//	push:   topic, icon, click_action, title
//	socket: event, room
//
// The email channel prefers Postmark, falls back to SMTP, and without either
// reports itself unhealthy and fails every send permanently. Push publishes a
// JSON PushEnvelope to an AMQP exchange. Socket publishes to the broadcast
// hub under the recipient ID.
//
// WithBreaker places a CircuitBreaker in front of a dispatcher so that a
// failing provider is skipped until it recovers.
package dispatcher
