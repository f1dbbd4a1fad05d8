package board

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

//MaxTextLength is the longest accepted message, counted in characters.
const MaxTextLength = 500

//timeLayout renders the clock time on a 12 hour dial without a date.
const timeLayout = "03:04:05"

var (
	ErrTooLong = errors.New("Message is too long.")
	ErrEmpty   = errors.New("Message is empty.")
)

//Message is one entry on the board. It has no identity beyond its position.
type Message struct {
	Email     string    `json:"email"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

//View is the shape a message is listed in.
type View struct {
	Email string `json:"email"`
	Text  string `json:"text"`
	Time  string `json:"time"`
}

//Board is a shared list of messages in insertion order.
type Board interface {
	Append(ctx context.Context, msg Message) error
	List(ctx context.Context) ([]Message, error)
	Close() error
}

//NewMessage stamps a message with the current local time.
func NewMessage(email, text string) Message {
	return Message{Email: email, Text: text, Timestamp: time.Now()}
}

//Validate reports why text cannot be posted, or nil.
func Validate(text string) error {
	if utf8.RuneCountInString(text) > MaxTextLength {
		return ErrTooLong
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	return nil
}

func (m Message) View() View {
	return View{
		Email: m.Email,
		Text:  m.Text,
		Time:  m.Timestamp.Local().Format(timeLayout),
	}
}

//Views converts messages for listing. It never returns nil.
func Views(msgs []Message) []View {
	out := make([]View, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.View())
	}
	return out
}
