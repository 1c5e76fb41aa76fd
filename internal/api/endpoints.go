package api

import (
	"context"
	"net/http"
	"net/url"
)

// Endpoint paths relative to the base path.
const (
	PathConfirm        = "/ACS"
	PathSendPubKey     = "/send_pub_key"
	PathSolveChallenge = "/solve_challenge"
	PathSendWrappedKey = "/send_wrapped_key"
	PathGetPublicKey   = "/get_public_key"
)

// Confirm posts to the confirmation endpoint. form carries whatever the
// identity provider handed to the agent (for example a SAML response).
func (c *Client) Confirm(ctx context.Context, form url.Values) (*ConfirmResponse, error) {
	if form == nil {
		form = url.Values{}
	}
	var result ConfirmResponse
	req := Request{Method: http.MethodPost, Path: PathConfirm, Form: form}
	if err := c.Do(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendPublicKey submits the exported public key and returns the challenge.
func (c *Client) SendPublicKey(ctx context.Context, token, pubKey string) (*ChallengeResponse, error) {
	var result ChallengeResponse
	req := Request{
		Method: http.MethodPost,
		Path:   PathSendPubKey,
		Token:  token,
		Form:   url.Values{"pubKey": {pubKey}},
	}
	if err := c.Do(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SolveChallenge submits the proof and returns the salt.
func (c *Client) SolveChallenge(ctx context.Context, token, proof string) (*SaltResponse, error) {
	var result SaltResponse
	req := Request{
		Method: http.MethodPost,
		Path:   PathSolveChallenge,
		Token:  token,
		Form:   url.Values{"solvedChallenge": {proof}},
	}
	if err := c.Do(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendWrappedKey submits the envelope transport form.
func (c *Client) SendWrappedKey(ctx context.Context, token, wrappedKey string) (*AckResponse, error) {
	var result AckResponse
	req := Request{
		Method: http.MethodPost,
		Path:   PathSendWrappedKey,
		Token:  token,
		Form:   url.Values{"wrappedKey": {wrappedKey}},
	}
	if err := c.Do(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPublicKeyByID looks up a public key by its key name identifier.
func (c *Client) GetPublicKeyByID(ctx context.Context, keyNameID string) (*PublicKeyResponse, error) {
	return c.getPublicKey(ctx, url.Values{"keynameid": {keyNameID}})
}

// GetPublicKeyByUsername looks up the public key of an account.
func (c *Client) GetPublicKeyByUsername(ctx context.Context, username string) (*PublicKeyResponse, error) {
	return c.getPublicKey(ctx, url.Values{"username": {username}})
}

func (c *Client) getPublicKey(ctx context.Context, query url.Values) (*PublicKeyResponse, error) {
	var result PublicKeyResponse
	req := Request{
		Method:     http.MethodGet,
		Path:       PathGetPublicKey,
		Query:      query,
		Idempotent: true,
	}
	if err := c.Do(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
