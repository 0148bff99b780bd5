package mwapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// queryResponse covers the action=query response shapes this client reads
// (formatversion=2).
type queryResponse struct {
	Continue struct {
		RvContinue string `json:"rvcontinue"`
	} `json:"continue"`
	Query struct {
		Pages []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			Revisions []struct {
				User      string `json:"user"`
				Timestamp string `json:"timestamp"`
				Comment   string `json:"comment"`
				Slots     struct {
					Main struct {
						Content string `json:"content"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
		Normalized []fromTo `json:"normalized"`
		Redirects  []fromTo `json:"redirects"`
		MagicWords []struct {
			Name    string   `json:"name"`
			Aliases []string `json:"aliases"`
		} `json:"magicwords"`
		Extensions []struct {
			DescriptionMsg string `json:"descriptionmsg"`
		} `json:"extensions"`
		Tokens struct {
			LoginToken string `json:"logintoken"`
			CSRFToken  string `json:"csrftoken"`
		} `json:"tokens"`
	} `json:"query"`
	Error *APIError `json:"error"`
}

type fromTo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type apiEnvelope struct {
	Error *APIError `json:"error"`
}

// get performs an idempotent API read, retrying 429/5xx and network errors
// with bounded exponential backoff.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params = withFormat(params)
	reqURL := c.apiURL + "?" + params.Encode()
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		c.setHeaders(req)
		body, status, retryAfter, err := c.roundTrip(req)
		if err != nil || status == http.StatusTooManyRequests || status >= 500 {
			if attempt < c.opts.MaxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, retryAfter)); waitErr != nil {
					return waitErr
				}
				continue
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("%s responded with status %d", c.domain, status)
		}
		if status != http.StatusOK {
			return fmt.Errorf("%s responded with status %d", c.domain, status)
		}
		return decodeResponse(body, out)
	}
}

// post performs a state-changing API call. Never retried.
func (c *Client) post(ctx context.Context, params url.Values, out any) error {
	params = withFormat(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setHeaders(req)
	body, status, _, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s responded with status %d", c.domain, status)
	}
	return decodeResponse(body, out)
}

func (c *Client) roundTrip(req *http.Request) (body []byte, status int, retryAfter string, err error) {
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()
	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, "", err
	}
	return body, resp.StatusCode, resp.Header.Get("Retry-After"), nil
}

func decodeResponse(body []byte, out any) error {
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("malformed api response: %w", err)
	}
	if env.Error != nil {
		return env.Error
	}
	return json.Unmarshal(body, out)
}

func withFormat(params url.Values) url.Values {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	return params
}

func (c *Client) setHeaders(req *http.Request) {
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.opts.MaxDelay {
			return c.opts.MaxDelay
		}
		return retryAfter
	}
	delay := c.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.MaxDelay {
			return c.opts.MaxDelay
		}
	}
	if delay > c.opts.MaxDelay {
		return c.opts.MaxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
