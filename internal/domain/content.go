package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrEmptyContent       = errors.New("message has no content")
)

// Content is the closed set of message payloads. Only the types in this
// file implement it.
type Content interface {
	Kind() MessageType
	isContent()
}

type Text struct{ Body string }

type Image struct{ Base64 string }

type Audio struct{ Base64 string }

type BotReply struct{ Body string }

type SystemNotice struct{ Body string }

func (Text) Kind() MessageType         { return MessageText }
func (Image) Kind() MessageType        { return MessageImage }
func (Audio) Kind() MessageType        { return MessageAudio }
func (BotReply) Kind() MessageType     { return MessageBot }
func (SystemNotice) Kind() MessageType { return MessageSystem }

func (Text) isContent()         {}
func (Image) isContent()        {}
func (Audio) isContent()        {}
func (BotReply) isContent()     {}
func (SystemNotice) isContent() {}

// Content decodes the stored discriminator into its typed payload.
func (m Message) Content() (Content, error) {
	switch m.Type {
	case MessageText:
		return Text{Body: m.Text}, nil
	case MessageImage:
		return Image{Base64: m.ImageBase64}, nil
	case MessageAudio:
		return Audio{Base64: m.AudioBase64}, nil
	case MessageBot:
		return BotReply{Body: m.Text}, nil
	case MessageSystem:
		return SystemNotice{Body: m.Text}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
}

// WithContent returns a copy of m carrying c in the matching fields.
func (m Message) WithContent(c Content) Message {
	m.Type = c.Kind()
	m.Text, m.ImageBase64, m.AudioBase64 = "", "", ""
	switch v := c.(type) {
	case Text:
		m.Text = v.Body
	case Image:
		m.ImageBase64 = v.Base64
	case Audio:
		m.AudioBase64 = v.Base64
	case BotReply:
		m.Text = v.Body
	case SystemNotice:
		m.Text = v.Body
	}
	return m
}

// ValidateUserContent checks content submitted by a customer or agent.
// Bot and system content can only be produced by the server.
func ValidateUserContent(c Content) error {
	switch v := c.(type) {
	case Text:
		if strings.TrimSpace(v.Body) == "" {
			return ErrEmptyContent
		}
	case Image:
		if v.Base64 == "" {
			return ErrEmptyContent
		}
	case Audio:
		if v.Base64 == "" {
			return ErrEmptyContent
		}
	case nil:
		return ErrEmptyContent
	default:
		return fmt.Errorf("%w: %q not allowed from users", ErrUnknownMessageType, c.Kind())
	}
	return nil
}

// ParseContent builds user content from a wire discriminator and payload.
func ParseContent(kind MessageType, text, imageBase64, audioBase64 string) (Content, error) {
	var c Content
	switch kind {
	case MessageText, "":
		c = Text{Body: text}
	case MessageImage:
		c = Image{Base64: imageBase64}
	case MessageAudio:
		c = Audio{Base64: audioBase64}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, kind)
	}
	if err := ValidateUserContent(c); err != nil {
		return nil, err
	}
	return c, nil
}
