package api

import (
	"b24gofer/internal/rest"
)

// Messages builds im.message.* requests
type Messages struct {
	client *Client
}

// Add posts a message to a dialog: a user id, or chatNNN for group chats.
// The result is the new message id.
func (m Messages) Add(dialogID, text string) *rest.Request {
	return m.client.Call("im.message.add", rest.NewParams(
		"DIALOG_ID", dialogID,
		"MESSAGE", text,
	))
}

// AddSystem posts a system message, shown without an author
func (m Messages) AddSystem(dialogID, text string) *rest.Request {
	return m.client.Call("im.message.add", rest.NewParams(
		"DIALOG_ID", dialogID,
		"MESSAGE", text,
		"SYSTEM", "Y",
	))
}
