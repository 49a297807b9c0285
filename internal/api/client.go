package api

import (
	"b24gofer/internal/rest"
)

// Client builds requests against one portal. Options passed to NewClient
// apply to every Request, BatchRequest and BatchesRequest it creates.
type Client struct {
	transport rest.Transport
	opts      []rest.Option
}

// NewClient creates a Client over the given transport
func NewClient(t rest.Transport, opts ...rest.Option) *Client {
	return &Client{transport: t, opts: opts}
}

// Transport returns the underlying transport
func (c *Client) Transport() rest.Transport {
	return c.transport
}

// Call builds a lazy request for any method
func (c *Client) Call(method string, params rest.Params) *rest.Request {
	return rest.NewRequest(c.transport, method, params, c.opts...)
}

// Batch wraps up to rest.MaxBatchSize requests into one round trip
func (c *Client) Batch(set *rest.Set, opts ...rest.Option) *rest.BatchRequest {
	return rest.NewBatchRequest(c.transport, set, c.options(opts)...)
}

// Batches splits any number of requests into consecutive batch calls
func (c *Client) Batches(set *rest.Set, opts ...rest.Option) *rest.BatchesRequest {
	return rest.NewBatchesRequest(c.transport, set, c.options(opts)...)
}

// Deals returns the crm.deal.* builders
func (c *Client) Deals() Entity {
	return Entity{client: c, prefix: "crm.deal"}
}

// Contacts returns the crm.contact.* builders
func (c *Client) Contacts() Entity {
	return Entity{client: c, prefix: "crm.contact"}
}

// Leads returns the crm.lead.* builders
func (c *Client) Leads() Entity {
	return Entity{client: c, prefix: "crm.lead"}
}

// Companies returns the crm.company.* builders
func (c *Client) Companies() Entity {
	return Entity{client: c, prefix: "crm.company"}
}

// Users returns the user.* builders
func (c *Client) Users() Users {
	return Users{client: c}
}

// Messages returns the im.message.* builders
func (c *Client) Messages() Messages {
	return Messages{client: c}
}

// options appends per call options after the client defaults so they win
func (c *Client) options(extra []rest.Option) []rest.Option {
	if len(extra) == 0 {
		return c.opts
	}
	all := make([]rest.Option, 0, len(c.opts)+len(extra))
	all = append(all, c.opts...)
	return append(all, extra...)
}
