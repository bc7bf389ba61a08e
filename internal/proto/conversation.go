package proto

import "strings"

// Conversation is the append-only state of one graph execution.
//
// Messages are never reordered or removed. The first message is the user
// request that opened the turn.
type Conversation struct {
	messages []Message
}

// NewConversation starts a conversation with the user's request.
func NewConversation(request Message) *Conversation {
	return &Conversation{messages: []Message{request}}
}

// Append adds messages to the end of the conversation.
func (c *Conversation) Append(msgs ...Message) {
	c.messages = append(c.messages, msgs...)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// First returns the message that opened the conversation.
func (c *Conversation) First() Message {
	if len(c.messages) == 0 {
		return Message{}
	}
	return c.messages[0]
}

// Last returns the most recently appended message.
func (c *Conversation) Last() Message {
	if len(c.messages) == 0 {
		return Message{}
	}
	return c.messages[len(c.messages)-1]
}

// Messages returns a copy of the messages in append order.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

func (c *Conversation) String() string {
	var sb strings.Builder
	for _, msg := range c.messages {
		sb.WriteString(msg.String())
	}
	return sb.String()
}
