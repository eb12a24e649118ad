/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/friendsincode/prevue/internal/clock"
)

// PlaybackInfo is the subset of Upstream's playback negotiation the proxy
// needs: a play session id and a media source to stream.
type PlaybackInfo struct {
	PlaySessionID string
	MediaSourceID string

	// TranscodingURL is set when Upstream decides to transcode; empty means
	// the source direct-plays.
	TranscodingURL string

	// IsHDRSource reports whether the source video stream carries an HDR
	// range. Upstream tone-maps during transcode; clients use this to flag
	// the quality tradeoff.
	IsHDRSource bool
}

type wireMediaStream struct {
	Type           string `json:"Type"`
	VideoRange     string `json:"VideoRange"`
	VideoRangeType string `json:"VideoRangeType"`
}

type wirePlaybackInfo struct {
	PlaySessionID string `json:"PlaySessionId"`
	MediaSources  []struct {
		ID             string            `json:"Id"`
		TranscodingURL string            `json:"TranscodingUrl"`
		MediaStreams   []wireMediaStream `json:"MediaStreams"`
	} `json:"MediaSources"`
}

// hasHDRStream reports whether any video stream advertises a non-SDR range.
// Servers disagree on which field carries it, so both are checked.
func hasHDRStream(streams []wireMediaStream) bool {
	for _, s := range streams {
		if s.Type != "Video" {
			continue
		}
		rangeType := s.VideoRangeType
		if rangeType == "" {
			rangeType = s.VideoRange
		}
		if rangeType != "" && !strings.EqualFold(rangeType, "SDR") {
			return true
		}
	}
	return false
}

// GetPlaybackInfo negotiates playback for an item and returns the session.
func (c *Client) GetPlaybackInfo(ctx context.Context, itemID string, startMs int64) (*PlaybackInfo, error) {
	query := url.Values{}
	query.Set("UserId", c.userID)
	body := map[string]any{
		"UserId":             c.userID,
		"StartTimeTicks":     msToTicks(startMs),
		"AutoOpenLiveStream": true,
	}
	var wire wirePlaybackInfo
	if err := c.do(ctx, http.MethodPost, "/Items/"+itemID+"/PlaybackInfo?"+query.Encode(), body, &wire); err != nil {
		return nil, err
	}
	if len(wire.MediaSources) == 0 {
		return nil, errors.New("upstream: playback info returned no media sources")
	}
	return &PlaybackInfo{
		PlaySessionID:  wire.PlaySessionID,
		MediaSourceID:  wire.MediaSources[0].ID,
		TranscodingURL: wire.MediaSources[0].TranscodingURL,
		IsHDRSource:    hasHDRStream(wire.MediaSources[0].MediaStreams),
	}, nil
}

// HlsStreamURL builds the master playlist URL for an item, seeking to startMs.
// The returned URL is absolute and authenticated via query token, the form
// HLS segment requests expect.
func (c *Client) HlsStreamURL(itemID string, info *PlaybackInfo, startMs int64) string {
	query := url.Values{}
	query.Set("api_key", c.token)
	query.Set("DeviceId", c.deviceID)
	query.Set("PlaySessionId", info.PlaySessionID)
	query.Set("MediaSourceId", info.MediaSourceID)
	query.Set("StartTimeTicks", strconv.FormatInt(msToTicks(startMs), 10))
	query.Set("SegmentContainer", "ts")
	return c.baseURL + "/Videos/" + itemID + "/master.m3u8?" + query.Encode()
}

// FetchRaw performs an authenticated GET against an absolute upstream URL and
// returns the response without consuming it. The proxy streams bodies through,
// so the caller owns closing.
func (c *Client) FetchRaw(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Emby-Token", c.token)
	req.Header.Set("X-Emby-Authorization", c.authHeader())
	return c.http.Do(req)
}

// ReportPlaybackStopped posts the final play position for a session.
func (c *Client) ReportPlaybackStopped(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionMs int64) error {
	body := map[string]any{
		"ItemId":        itemID,
		"MediaSourceId": mediaSourceID,
		"PlaySessionId": playSessionID,
		"PositionTicks": msToTicks(positionMs),
	}
	return c.do(ctx, http.MethodPost, "/Sessions/Playing/Stopped", body, nil)
}

// StopPlaybackSession tells Upstream the play session ended.
func (c *Client) StopPlaybackSession(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionMs int64) error {
	return c.ReportPlaybackStopped(ctx, itemID, mediaSourceID, playSessionID, positionMs)
}

// DeleteTranscodingJob removes any server-side transcode for a play session so
// abandoned tunes stop burning CPU on Upstream.
func (c *Client) DeleteTranscodingJob(ctx context.Context, playSessionID string) error {
	query := url.Values{}
	query.Set("deviceId", c.deviceID)
	query.Set("playSessionId", playSessionID)
	err := c.do(ctx, http.MethodDelete, "/Videos/ActiveEncodings?"+query.Encode(), nil, nil)
	var status *StatusError
	if errors.As(err, &status) && status.StatusCode == http.StatusNotFound {
		// Already gone.
		return nil
	}
	return err
}

// ReportPlaybackStart marks the item as playing for the user on Upstream, so
// its own clients show it under "continue watching" and activity.
func (c *Client) ReportPlaybackStart(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionMs int64) error {
	body := map[string]any{
		"ItemId":        itemID,
		"MediaSourceId": mediaSourceID,
		"PlaySessionId": playSessionID,
		"PositionTicks": msToTicks(positionMs),
		"PlayMethod":    "Transcode",
		"CanSeek":       false,
	}
	return c.do(ctx, http.MethodPost, "/Sessions/Playing", body, nil)
}

// ReportPlaybackProgress updates the play position on Upstream.
func (c *Client) ReportPlaybackProgress(ctx context.Context, itemID, mediaSourceID, playSessionID string, positionMs int64, paused bool) error {
	body := map[string]any{
		"ItemId":        itemID,
		"MediaSourceId": mediaSourceID,
		"PlaySessionId": playSessionID,
		"PositionTicks": msToTicks(positionMs),
		"IsPaused":      paused,
	}
	return c.do(ctx, http.MethodPost, "/Sessions/Playing/Progress", body, nil)
}

func msToTicks(ms int64) int64 {
	return clock.MsToTicks(ms)
}
