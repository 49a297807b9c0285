package api

import (
	"b24gofer/internal/rest"
)

// UserQuery describes a user.get call
type UserQuery struct {
	Filter map[string]interface{}
	Sort   string
	Order  string // ASC or DESC
	Start  int
}

// Params renders the query
func (q UserQuery) Params() rest.Params {
	params := rest.Params{}
	if len(q.Filter) > 0 {
		params = params.Set("FILTER", q.Filter)
	}
	if q.Sort != "" {
		params = params.Set("SORT", q.Sort)
	}
	if q.Order != "" {
		params = params.Set("ORDER", q.Order)
	}
	if q.Start != 0 {
		params = params.Set("start", q.Start)
	}
	return params
}

// Users builds user.* requests
type Users struct {
	client *Client
}

// Current returns the user the webhook or token belongs to
func (u Users) Current() *rest.Request {
	return u.client.Call("user.current", nil)
}

// Get returns one page of users matching the query
func (u Users) Get(q UserQuery) *rest.Request {
	return u.client.Call("user.get", q.Params())
}

// ByID returns a single user
func (u Users) ByID(id int) *rest.Request {
	return u.Get(UserQuery{Filter: map[string]interface{}{"ID": id}})
}
