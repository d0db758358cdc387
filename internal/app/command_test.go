package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cases := map[string]struct {
		in   string
		want Command
	}{
		"fetch":             {`{"command":"fetch_messages"}`, FetchMessages{}},
		"new":               {`{"command":"new_message","message":"hi"}`, NewMessage{Body: "hi"}},
		"new empty":         {`{"command":"new_message","message":""}`, NewMessage{}},
		"new without body":  {`{"command":"new_message"}`, UnknownCommand{Name: "new_message"}},
		"new numeric body":  {`{"command":"new_message","message":5}`, UnknownCommand{Name: "new_message"}},
		"unknown":           {`{"command":"bogus"}`, UnknownCommand{Name: "bogus"}},
		"missing command":   {`{"message":"hi"}`, UnknownCommand{}},
		"malformed":         {`{"command":`, UnknownCommand{}},
		"not an object":     {`[1,2]`, UnknownCommand{}},
		"case sensitive":    {`{"command":"FETCH_MESSAGES"}`, UnknownCommand{Name: "FETCH_MESSAGES"}},
		"extra fields kept": {`{"command":"fetch_messages","page":2}`, FetchMessages{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, ParseCommand([]byte(tc.in)))
		})
	}
}
