package navigation

import "log"

// Notifier surfaces recoverable failures to the user as transient messages.
// It is never called for a session expiry.
type Notifier interface {
	// Message shows an application-level message (respmsg of a "ko").
	Message(text string)
	// Failure shows the generic notification for a failed exchange.
	Failure(err error)
}

type logNotifier struct{}

func (logNotifier) Message(text string) { log.Printf("navigation: %s", text) }

func (logNotifier) Failure(err error) { log.Printf("navigation: request failed: %v", err) }

// NotifyFuncs adapts two functions to Notifier. Nil fields are ignored.
type NotifyFuncs struct {
	OnMessage func(text string)
	OnFailure func(err error)
}

func (n NotifyFuncs) Message(text string) {
	if n.OnMessage != nil {
		n.OnMessage(text)
	}
}

func (n NotifyFuncs) Failure(err error) {
	if n.OnFailure != nil {
		n.OnFailure(err)
	}
}
