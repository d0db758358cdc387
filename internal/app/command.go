package app

import "encoding/json"

// Command is one decoded client request. The set of commands is closed.
type Command interface {
	command() string
}

type FetchMessages struct{}

type NewMessage struct {
	Body string
}

// UnknownCommand is anything that is not a valid request, including
// malformed JSON and a missing command field.
type UnknownCommand struct {
	Name string
}

func (FetchMessages) command() string    { return "fetch_messages" }
func (NewMessage) command() string       { return "new_message" }
func (c UnknownCommand) command() string { return c.Name }

func ParseCommand(data []byte) Command {
	var env struct {
		Command string           `json:"command"`
		Message *json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return UnknownCommand{}
	}
	switch env.Command {
	case "fetch_messages":
		return FetchMessages{}
	case "new_message":
		var body string
		if env.Message == nil || json.Unmarshal(*env.Message, &body) != nil {
			return UnknownCommand{Name: env.Command}
		}
		return NewMessage{Body: body}
	default:
		return UnknownCommand{Name: env.Command}
	}
}
