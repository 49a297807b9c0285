package api

import (
	"b24gofer/internal/rest"
)

// Fields holds entity field values keyed by provider field name (TITLE, STAGE_ID, UF_CRM_...)
type Fields map[string]interface{}

// ListQuery describes a *.list call
type ListQuery struct {
	Select []string
	Filter map[string]interface{}
	Order  map[string]string
	// Start is the page offset; take it from the previous page's next value
	Start int
}

// Params renders the query in wire order: select, filter, order, start
func (q ListQuery) Params() rest.Params {
	params := rest.Params{}
	if len(q.Select) > 0 {
		params = params.Set("select", q.Select)
	}
	if len(q.Filter) > 0 {
		params = params.Set("filter", q.Filter)
	}
	if len(q.Order) > 0 {
		params = params.Set("order", q.Order)
	}
	if q.Start != 0 {
		params = params.Set("start", q.Start)
	}
	return params
}

// Entity builds requests for one CRM entity type
type Entity struct {
	client *Client
	prefix string
}

// Method returns the full method name for an action, e.g. crm.deal.get
func (e Entity) Method(action string) string {
	return e.prefix + "." + action
}

// Get fetches one entity by id
func (e Entity) Get(id int) *rest.Request {
	return e.client.Call(e.Method("get"), rest.NewParams("id", id))
}

// List fetches one page of entities
func (e Entity) List(q ListQuery) *rest.Request {
	return e.client.Call(e.Method("list"), q.Params())
}

// Add creates an entity; the result is the new id
func (e Entity) Add(fields Fields) *rest.Request {
	return e.client.Call(e.Method("add"), rest.NewParams("fields", map[string]interface{}(fields)))
}

// Update changes the given fields of an entity
func (e Entity) Update(id int, fields Fields) *rest.Request {
	return e.client.Call(e.Method("update"), rest.NewParams("id", id, "fields", map[string]interface{}(fields)))
}

// Delete removes an entity
func (e Entity) Delete(id int) *rest.Request {
	return e.client.Call(e.Method("delete"), rest.NewParams("id", id))
}

// Fields describes the entity fields
func (e Entity) Fields() *rest.Request {
	return e.client.Call(e.Method("fields"), nil)
}
