// Licensed under the Apache License, Version 2.0
// Details: https://raw.githubusercontent.com/square/permitbucket/master/LICENSE

// Package client talks to a permitbucket admin console over HTTP.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/square/permitbucket/admin"
	"github.com/square/permitbucket/config"
	"github.com/square/permitbucket/stats"
)

// Client is an admin console client, adding syntactic sugar over the raw REST calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	user       string
}

// APIError is returned when the admin console responds with an error.
type APIError struct {
	Status      int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Description)
}

// New creates a client for the admin console at baseURL, e.g. http://localhost:8080. Changes are
// made on behalf of user.
func New(httpClient *http.Client, baseURL, user string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/"), user: user}
}

// Configs returns the running config.
func (c *Client) Configs() (*config.ServiceConfig, error) {
	cfg := &config.ServiceConfig{}
	return cfg, c.do("GET", "/api/configs", nil, cfg)
}

// UpdateConfig replaces the running config.
func (c *Client) UpdateConfig(cfg *config.ServiceConfig) error {
	return c.do("POST", "/api/configs", cfg, nil)
}

// History returns previously applied configs, newest first.
func (c *Client) History() ([]*config.ServiceConfig, error) {
	response := &struct {
		Configs []*config.ServiceConfig `json:"configs"`
	}{}
	err := c.do("GET", "/api/configs/history", nil, response)
	return response.Configs, err
}

// Bucket returns the config of a single bucket.
func (c *Client) Bucket(name string) (*config.BucketConfig, error) {
	b := &config.BucketConfig{}
	return b, c.do("GET", bucketPath(name), nil, b)
}

// AddBucket adds a bucket that doesn't exist yet.
func (c *Client) AddBucket(b *config.BucketConfig) error {
	return c.do("POST", bucketPath(b.Name), b, nil)
}

// UpdateBucket adds or replaces a bucket.
func (c *Client) UpdateBucket(b *config.BucketConfig) error {
	return c.do("PUT", bucketPath(b.Name), b, nil)
}

// DeleteBucket removes a bucket.
func (c *Client) DeleteBucket(name string) error {
	return c.do("DELETE", bucketPath(name), nil, nil)
}

// Statuses returns the live state of every bucket.
func (c *Client) Statuses() ([]*admin.BucketStatus, error) {
	response := &struct {
		Buckets []*admin.BucketStatus `json:"buckets"`
	}{}
	err := c.do("GET", "/api/buckets", nil, response)
	return response.Buckets, err
}

// Stats returns hits and misses for a dynamic bucket.
func (c *Client) Stats(name string) (*stats.BucketScores, error) {
	response := make(map[string]*stats.BucketScores)
	if err := c.do("GET", "/api/stats/"+url.PathEscape(name), nil, &response); err != nil {
		return nil, err
	}

	return response[name], nil
}

func bucketPath(name string) string {
	return "/api/buckets/" + url.PathEscape(name)
}

func (c *Client) do(method, path string, body, response interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "unable to marshal request")
		}
		reader = bytes.NewReader(b)
	}

	request, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "unable to create request %v %v", method, path)
	}

	request.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		request.Header.Set(admin.UserHeader, c.user)
	}

	res, err := c.httpClient.Do(request)
	if err != nil {
		return errors.Wrapf(err, "%v %v failed", method, path)
	}
	defer res.Body.Close()

	b, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "unable to read response")
	}

	if res.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: res.StatusCode, Description: strings.TrimSpace(string(b))}
		errResponse := make(map[string]string)
		if json.Unmarshal(b, &errResponse) == nil && errResponse["description"] != "" {
			apiErr.Description = errResponse["description"]
		}
		return apiErr
	}

	if response == nil || len(b) == 0 {
		return nil
	}

	return errors.Wrap(json.Unmarshal(b, response), "unable to unmarshal response")
}
