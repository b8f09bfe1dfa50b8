package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Domains returns the first page of domains offered for new accounts.
func (c *Client) Domains(ctx context.Context) (*Collection[Domain], error) {
	var result Collection[Domain]
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/domains",
		endpoint: "/domains",
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateAccount registers a new mailbox. The provider answers 201 with the
// account; some deployments answer with an empty object, which is accepted.
func (c *Client) CreateAccount(ctx context.Context, creds Credentials) (*Account, error) {
	var result Account
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/accounts",
		endpoint: "/accounts",
		body:     creds,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Token exchanges credentials for a bearer token.
func (c *Client) Token(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	var result TokenResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/token",
		endpoint: "/token",
		body:     creds,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Messages lists one page of message summaries. Pages start at 1; page <= 1
// requests the first page without a query string.
func (c *Client) Messages(ctx context.Context, token string, page int) (*Collection[RawMessage], error) {
	path := "/messages"
	if page > 1 {
		path += "?" + url.Values{"page": {fmt.Sprint(page)}}.Encode()
	}

	var result Collection[RawMessage]
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     path,
		endpoint: "/messages",
		token:    token,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Message fetches one message with its body and attachment metadata.
func (c *Client) Message(ctx context.Context, token, id string) (*RawMessageDetail, error) {
	var result RawMessageDetail
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/messages/" + url.PathEscape(id),
		endpoint: "/messages/{id}",
		token:    token,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Source fetches the raw RFC 822 source of a message.
func (c *Client) Source(ctx context.Context, token, id string) (*RawSource, error) {
	var result RawSource
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/sources/" + url.PathEscape(id),
		endpoint: "/sources/{id}",
		token:    token,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkSeen flags a message as read.
func (c *Client) MarkSeen(ctx context.Context, token, id string) error {
	return c.do(ctx, request{
		method:      http.MethodPatch,
		path:        "/messages/" + url.PathEscape(id),
		endpoint:    "/messages/{id}",
		token:       token,
		body:        map[string]bool{"seen": true},
		contentType: "application/merge-patch+json",
	}, nil)
}

// DeleteMessage removes a message from the mailbox.
func (c *Client) DeleteMessage(ctx context.Context, token, id string) error {
	return c.do(ctx, request{
		method:   http.MethodDelete,
		path:     "/messages/" + url.PathEscape(id),
		endpoint: "/messages/{id}",
		token:    token,
	}, nil)
}

// Me returns the account the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*Account, error) {
	var result Account
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/me",
		endpoint: "/me",
		token:    token,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteAccount removes the mailbox account and all of its messages.
func (c *Client) DeleteAccount(ctx context.Context, token, id string) error {
	return c.do(ctx, request{
		method:   http.MethodDelete,
		path:     "/accounts/" + url.PathEscape(id),
		endpoint: "/accounts/{id}",
		token:    token,
	}, nil)
}
