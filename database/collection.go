package database

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"runitdb/logging"
)

// CollectionHandle issues requests against one collection of the client's
// project. Create it with Client.Collection.
type CollectionHandle struct {
	client *Client
	name   string
	base   string
	logger *logging.Logger
}

type countRequest struct {
	Function string `json:"function"`
	Filter   Filter `json:"filter"`
}

type insertRequest struct {
	Documents any `json:"documents"`
}

type updateRequest struct {
	Filter   Filter   `json:"filter"`
	Document Document `json:"document"`
}

func (c *CollectionHandle) Name() string {
	return c.name
}

// Count returns the number of documents matching filter.
func (c *CollectionHandle) Count(ctx context.Context, filter Filter) (Result, error) {
	filter, err := ValidateFilter(filter)
	if err != nil {
		return nil, err
	}
	return c.post(ctx, c.base+"/", countRequest{Function: "count", Filter: filter})
}

// Select returns the given columns of the documents matching filter.
func (c *CollectionHandle) Select(ctx context.Context, columns []string, filter Filter) (Result, error) {
	params, err := queryParams(filter, columns)
	if err != nil {
		return nil, err
	}
	params.Set("function", "select")
	return c.get(ctx, c.base, params)
}

func (c *CollectionHandle) All(ctx context.Context, columns []string) (Result, error) {
	params, err := queryParams(nil, columns)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, c.base, params)
}

// Get fetches a single document by its ID.
func (c *CollectionHandle) Get(ctx context.Context, id string, columns []string) (Result, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: document ID is required", ErrConfig)
	}
	params, err := queryParams(nil, columns)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, c.base+"/"+url.PathEscape(id), params)
}

func (c *CollectionHandle) FindOne(ctx context.Context, filter Filter, columns []string) (Result, error) {
	params, err := queryParams(filter, columns)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, c.base, params)
}

func (c *CollectionHandle) Find(ctx context.Context, filter Filter, columns []string) (Result, error) {
	params, err := queryParams(filter, columns)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, c.base+"/", params)
}

func (c *CollectionHandle) InsertOne(ctx context.Context, doc Document) (Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is required", ErrConfig)
	}
	return c.post(ctx, c.base, insertRequest{Documents: doc})
}

func (c *CollectionHandle) InsertMany(ctx context.Context, docs []Document) (Result, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: documents list cannot be empty", ErrConfig)
	}
	return c.post(ctx, c.base, insertRequest{Documents: docs})
}

// Update applies update to every document matching filter.
func (c *CollectionHandle) Update(ctx context.Context, filter Filter, update Document) (Result, error) {
	if update == nil {
		return nil, fmt.Errorf("%w: update document is required", ErrConfig)
	}
	filter, err := ValidateFilter(filter)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.transport.Put(ctx, c.base+"/", updateRequest{Filter: filter, Document: update})
	return Result(raw), err
}

// Remove deletes the documents matching filter. Each filter entry is sent as
// its own query parameter.
func (c *CollectionHandle) Remove(ctx context.Context, filter Filter) (Result, error) {
	filter, err := ValidateFilter(filter)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	for key, value := range filter {
		encoded, err := queryValue(value)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", key, err)
		}
		params.Set(key, encoded)
	}
	raw, err := c.client.transport.Delete(ctx, c.base, params)
	return Result(raw), err
}

func (c *CollectionHandle) get(ctx context.Context, rawURL string, params url.Values) (Result, error) {
	raw, err := c.client.transport.Get(ctx, rawURL, params)
	return Result(raw), err
}

func (c *CollectionHandle) post(ctx context.Context, rawURL string, body any) (Result, error) {
	raw, err := c.client.transport.Post(ctx, rawURL, body)
	return Result(raw), err
}

// queryParams validates filter and columns and encodes them for a GET:
// columns as a repeated parameter, filter as one JSON-encoded parameter.
// Empty values are left out.
func queryParams(filter Filter, columns []string) (url.Values, error) {
	filter, err := ValidateFilter(filter)
	if err != nil {
		return nil, err
	}
	columns, err = ValidateColumns(columns)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	for _, column := range columns {
		params.Add("columns", column)
	}
	if len(filter) > 0 {
		data, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		params.Set("filter", string(data))
	}
	return params, nil
}

func queryValue(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Name-keyed forms of the collection operations. Each validates name and
// delegates to the matching CollectionHandle method.

func (c *Client) Count(ctx context.Context, collection string, filter Filter) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.Count(ctx, filter)
}

func (c *Client) Select(ctx context.Context, collection string, columns []string, filter Filter) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.Select(ctx, columns, filter)
}

func (c *Client) All(ctx context.Context, collection string, columns []string) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.All(ctx, columns)
}

func (c *Client) Get(ctx context.Context, collection, id string, columns []string) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.Get(ctx, id, columns)
}

func (c *Client) FindOne(ctx context.Context, collection string, filter Filter, columns []string) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.FindOne(ctx, filter, columns)
}

func (c *Client) Find(ctx context.Context, collection string, filter Filter, columns []string) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.Find(ctx, filter, columns)
}

func (c *Client) InsertOne(ctx context.Context, collection string, doc Document) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.InsertOne(ctx, doc)
}

func (c *Client) InsertMany(ctx context.Context, collection string, docs []Document) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.InsertMany(ctx, docs)
}

func (c *Client) Update(ctx context.Context, collection string, filter Filter, update Document) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.Update(ctx, filter, update)
}

func (c *Client) Remove(ctx context.Context, collection string, filter Filter) (Result, error) {
	h, err := c.Collection(collection)
	if err != nil {
		return nil, err
	}
	return h.Remove(ctx, filter)
}
