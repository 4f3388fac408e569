package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// StepPrinterFunc returns a handler printing streamed completions to w as
// they arrive. Reasoning is printed only when showThinking is set.
func StepPrinterFunc(name string, w io.Writer, showThinking bool) func(msg *message.Message) error {
	isFirst := true
	inThinking := false

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		switch p_ := e.(type) {
		case *EventThinkingPartial:
			if !showThinking {
				return nil
			}
			if !inThinking {
				inThinking = true
				if _, err := fmt.Fprintf(w, "\n--- Thinking ---\n"); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(w, "%s", p_.Delta)
			return err

		case *EventPartialCompletion:
			if inThinking {
				inThinking = false
				if _, err := fmt.Fprintf(w, "\n--- Output ---\n"); err != nil {
					return err
				}
			}
			if isFirst && name != "" {
				isFirst = false
				if _, err := fmt.Fprintf(w, "\n%s: \n", name); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(w, "%s", p_.Delta)
			return err

		case *EventFinal:
			isFirst = true
			if !strings.HasSuffix(p_.Text, "\n") {
				_, err = fmt.Fprintf(w, "\n")
			}
			return err

		case *EventError:
			_, err = fmt.Fprintf(w, "\n[error] %s\n", p_.ErrorString)
			return err

		case *EventNotification:
			if p_.Message != "" {
				_, err = fmt.Fprintf(w, "[%s] %s: %s\n", p_.Level, p_.Title, p_.Message)
			} else {
				_, err = fmt.Fprintf(w, "[%s] %s\n", p_.Level, p_.Title)
			}
			return err

		case *EventPartialCompletionStart, *EventStore:
		}

		return nil
	}
}
