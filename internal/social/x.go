package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
)

const tweetsEndpoint = "https://api.twitter.com/2/tweets"

// XClient posts replies through the X v2 API using OAuth1 user context.
type XClient struct {
	client     *http.Client
	configured bool
}

var _ Poster = (*XClient)(nil)

// NewXClient builds a poster from OAuth1 credentials. Empty credentials
// yield an unconfigured client whose PostReply always fails.
func NewXClient(apiKey, apiSecret, accessToken, accessSecret string) *XClient {
	if apiKey == "" || apiSecret == "" || accessToken == "" || accessSecret == "" {
		return &XClient{configured: false}
	}

	config := oauth1.NewConfig(apiKey, apiSecret)
	token := oauth1.NewToken(accessToken, accessSecret)
	httpClient := config.Client(oauth1.NoContext, token)
	httpClient.Timeout = 30 * time.Second

	return &XClient{client: httpClient, configured: true}
}

// IsConfigured reports whether all four credentials were provided.
func (c *XClient) IsConfigured() bool {
	return c.configured
}

type tweetRequest struct {
	Text  string `json:"text"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// PostReply publishes text as a reply to the given post.
func (c *XClient) PostReply(ctx context.Context, inReplyTo, text string) (string, error) {
	if !c.configured {
		return "", fmt.Errorf("x credentials not configured")
	}

	payload := tweetRequest{Text: text}
	if inReplyTo != "" {
		payload.Reply = &struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		}{InReplyToTweetID: inReplyTo}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tweetsEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post tweet: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("x api error (%d): %s", resp.StatusCode, string(respBody))
	}

	var tweet tweetResponse
	if err := json.Unmarshal(respBody, &tweet); err != nil {
		return "", fmt.Errorf("parse tweet response: %w", err)
	}
	if tweet.Data.ID == "" {
		return "", fmt.Errorf("x api returned no tweet id")
	}

	return tweet.Data.ID, nil
}
