package updater

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxFeedSize bounds how much of a release feed is read
const maxFeedSize = 4 << 20

// Asset is a downloadable artifact of a release
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
}

// Release is one entry of a release feed
type Release struct {
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
	Assets    []Asset   `json:"assets"`
}

// ParseFeed decodes a release feed. The feed is either a single release object
// or an array of releases, in which case the most recently created one is
// returned.
func ParseFeed(data []byte) (*Release, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty release feed")
	}

	if data[0] != '[' {
		var release Release
		if err := json.Unmarshal(data, &release); err != nil {
			return nil, fmt.Errorf("parsing release JSON: %w", err)
		}
		if release.Tag == "" {
			return nil, errors.New("release has no tag")
		}
		return &release, nil
	}

	var releases []Release
	if err := json.Unmarshal(data, &releases); err != nil {
		return nil, fmt.Errorf("parsing release list JSON: %w", err)
	}

	var newest *Release
	for i := range releases {
		r := &releases[i]
		if r.Tag == "" {
			continue
		}
		if newest == nil || r.CreatedAt.After(newest.CreatedAt) {
			newest = r
		}
	}
	if newest == nil {
		return nil, errors.New("release feed has no releases")
	}
	return newest, nil
}

func (c *Checker) fetchRelease(ctx context.Context, url string) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching release feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("reading release feed: %w", err)
	}
	return ParseFeed(body)
}
