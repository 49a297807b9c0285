package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"b24gofer/internal/rest"
)

// ListAll fetches every page of a list method and returns the items in order.
// The first page is a standalone call; its total and next values give the
// remaining offsets, which are fetched with one BatchesRequest. Only list
// methods whose result is a JSON array are supported.
func (e Entity) ListAll(ctx context.Context, q ListQuery, opts ...rest.Option) ([]json.RawMessage, error) {
	return e.client.ListAll(ctx, e.Method("list"), q, opts...)
}

// ListAll is Entity.ListAll for an arbitrary list method
func (c *Client) ListAll(ctx context.Context, method string, q ListQuery, opts ...rest.Option) ([]json.RawMessage, error) {
	return c.ListAllParams(ctx, method, q.Params(), opts...)
}

// ListAllParams is ListAll for raw parameters; a start parameter sets the first offset
func (c *Client) ListAllParams(ctx context.Context, method string, params rest.Params, opts ...rest.Option) ([]json.RawMessage, error) {
	offset, err := startOffset(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	first, err := c.Call(method, params).Response(ctx)
	if err != nil {
		return nil, err
	}

	items, err := pageItems(method, first.Result)
	if err != nil {
		return nil, err
	}
	if first.Next == nil || first.Total == nil {
		return items, nil
	}

	step := *first.Next - offset
	if step <= 0 {
		return nil, fmt.Errorf("%s: next offset %d does not advance past %d", method, *first.Next, offset)
	}

	var pages []*rest.Request
	for start := *first.Next; start < *first.Total; start += step {
		pages = append(pages, c.Call(method, params.Clone().Set("start", start)))
	}
	if len(pages) == 0 {
		return items, nil
	}

	res, err := c.Batches(rest.Seq(pages...), opts...).Result(ctx)
	if err != nil {
		return nil, err
	}

	for _, key := range res.InputKeys() {
		raw, err := res.Get(key)
		if err != nil {
			return nil, err
		}
		page, err := pageItems(method, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
	}

	return items, nil
}

// startOffset reads the start parameter as an int, 0 when absent
func startOffset(params rest.Params) (int, error) {
	v, ok := params.Get("start")
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("start must be an integer: %w", err)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("start must be an integer: %w", err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("start must be an integer, got %T", v)
	}
}

func pageItems(method string, raw json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%s: list result is not an array: %w", method, err)
	}
	return items, nil
}
