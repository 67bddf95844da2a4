package apiclient

import (
	"context"
	"net/http"
	"net/url"
)

// JSON sends in as the request body, fails on any non-2xx status and
// decodes the response into out. Either may be nil.
func (c *Client) JSON(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	req, err := NewJSONRequest(method, path, in)
	if err != nil {
		return err
	}
	req.Query = query

	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.JSON(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out interface{}) error {
	return c.JSON(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out interface{}) error {
	return c.JSON(ctx, http.MethodPut, path, nil, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.JSON(ctx, http.MethodDelete, path, nil, nil, nil)
}
