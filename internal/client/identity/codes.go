package identity

import (
	"context"
	"fmt"
	"net/url"
)

// RequestLoginCode asks the user-center to mint a fresh login code for this
// client. The returned attempt id is the nonce the confirming device echoes
// back through whichever completion channel it uses.
func (c *Client) RequestLoginCode(ctx context.Context) (LoginCode, error) {
	var code LoginCode
	err := c.postJSON(ctx, "/front/auth/qrcode/generate", map[string]string{
		"appId": c.AppID,
	}, &code)
	if err != nil {
		return LoginCode{}, fmt.Errorf("request login code: %w", err)
	}
	return code, nil
}

// RenderScannableAsset asks the user-center to render the mini-program code
// image for an already-minted login code.
func (c *Client) RenderScannableAsset(ctx context.Context, attemptID, targetPath string, size int, env string) (ScannableAsset, error) {
	payload := map[string]any{
		"appId":    c.AppID,
		"qrcodeId": attemptID,
	}
	if targetPath != "" {
		payload["page"] = targetPath
	}
	if size > 0 {
		payload["width"] = size
	}
	if env != "" {
		payload["envVersion"] = env
	}

	var asset ScannableAsset
	if err := c.postJSON(ctx, "/front/auth/wxacode/generate", payload, &asset); err != nil {
		return ScannableAsset{}, fmt.Errorf("render scannable asset: %w", err)
	}
	return asset, nil
}

// PollLoginStatus asks whether the attempt has been confirmed on the trusted
// device. Calls pass through the client's rate limiter; the wait aborts when
// ctx is cancelled, which is how a stopped poller abandons a queued poll.
func (c *Client) PollLoginStatus(ctx context.Context, attemptID string) (PollResult, error) {
	if c.PollLimiter != nil {
		if err := c.PollLimiter.Wait(ctx); err != nil {
			return PollResult{}, err
		}
	}

	var result PollResult
	path := "/front/auth/qrcode/status?qrcodeId=" + url.QueryEscape(attemptID)
	if err := c.getJSON(ctx, path, &result); err != nil {
		return PollResult{}, fmt.Errorf("poll login status: %w", err)
	}
	return result, nil
}
