/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package stream proxies HLS playback between clients and Upstream. The proxy
// rewrites playlists so every segment request comes back through us, keeping
// session activity visible and Upstream unexposed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/prevue/internal/sessions"
	"github.com/friendsincode/prevue/internal/telemetry"
	"github.com/friendsincode/prevue/internal/upstream"
)

// ProxyPrefix is the public path prefix rewritten playlist entries point at.
const ProxyPrefix = "/api/stream/proxy"

// releaseDelay keeps a finished fetch joinable for a beat, so the burst of
// identical segment requests HLS players issue on seek all share one upstream
// hit.
const releaseDelay = 100 * time.Millisecond

// ErrNoUpstream is returned when no active server client is available.
var ErrNoUpstream = errors.New("stream: no upstream client")

// mediaLine matches playlist lines referencing fetchable media.
var mediaLine = regexp.MustCompile(`\.(m3u8|ts|vtt)`)

// ClientSource returns the current Upstream client, or nil when no server is
// active. The active server can change at runtime, so the proxy resolves it
// per request.
type ClientSource func() *upstream.Client

// MasterParams are the tunable knobs on a master playlist request.
type MasterParams struct {
	SeekMs           int64
	BitrateBps       int
	MaxWidth         int
	AudioStreamIndex int // -1 when unset
}

// Proxy is the HLS passthrough.
type Proxy struct {
	clients  ClientSource
	registry *sessions.Registry
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]*pendingFetch
}

type pendingFetch struct {
	done chan struct{}
	res  *fetchResult
	err  error
}

type fetchResult struct {
	status      int
	contentType string
	body        []byte
}

// NewProxy constructs the proxy.
func NewProxy(clients ClientSource, registry *sessions.Registry, logger zerolog.Logger) *Proxy {
	return &Proxy{
		clients:  clients,
		registry: registry,
		logger:   logger.With().Str("component", "stream").Logger(),
		inflight: map[string]*pendingFetch{},
	}
}

// Master negotiates playback for an item and writes the rewritten master
// playlist. The session is registered before the first byte goes out so the
// reaper sees it even if the client never fetches a segment.
func (p *Proxy) Master(ctx context.Context, w http.ResponseWriter, itemID string, params MasterParams) error {
	client := p.clients()
	if client == nil {
		return ErrNoUpstream
	}

	info, err := client.GetPlaybackInfo(ctx, itemID, params.SeekMs)
	if err != nil {
		return fmt.Errorf("stream: playback info: %w", err)
	}
	p.registry.Track(itemID, info.PlaySessionID, info.MediaSourceID)

	// Best-effort: a failed report must not block the stream, but Upstream's
	// own activity view and "continue watching" depend on it.
	if err := client.ReportPlaybackStart(ctx, itemID, info.MediaSourceID, info.PlaySessionID, params.SeekMs); err != nil {
		p.logger.Debug().Err(err).Str("item_id", itemID).Msg("start report failed")
	}
	if info.IsHDRSource {
		p.logger.Debug().Str("item_id", itemID).Msg("hdr source, upstream tone-maps during transcode")
	}

	masterURL := client.HlsStreamURL(itemID, info, params.SeekMs) + transcodeParams(params)
	resp, err := client.FetchRaw(ctx, masterURL)
	if err != nil {
		return fmt.Errorf("stream: fetch master: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.cleanupSessionAsync(itemID, info.PlaySessionID)
		return fmt.Errorf("stream: upstream master status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("stream: read master: %w", err)
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	_, err = w.Write(RewritePlaylist(body, client.DeviceID(), info.PlaySessionID))
	return err
}

// transcodeParams renders the quality knobs as Upstream query parameters.
// h264/aac in a ts container is the broad-compatibility target; explicit
// bitrate forces a transcode, absence lets Upstream direct-stream when it can.
func transcodeParams(params MasterParams) string {
	q := url.Values{}
	q.Set("VideoCodec", "h264")
	q.Set("AudioCodec", "aac")
	q.Set("BreakOnNonKeyFrames", "True")
	q.Set("TranscodingMaxAudioChannels", "2")
	if params.BitrateBps > 0 {
		q.Set("VideoBitrate", strconv.Itoa(params.BitrateBps))
	}
	if params.MaxWidth > 0 {
		q.Set("MaxWidth", strconv.Itoa(params.MaxWidth))
	}
	if params.AudioStreamIndex >= 0 {
		q.Set("AudioStreamIndex", strconv.Itoa(params.AudioStreamIndex))
	}
	return "&" + q.Encode()
}

// ServeProxy forwards one rewritten playlist or segment request to Upstream.
func (p *Proxy) ServeProxy(w http.ResponseWriter, r *http.Request, subpath string) {
	client := p.clients()
	if client == nil {
		http.Error(w, `{"error":"no_upstream"}`, http.StatusBadGateway)
		return
	}

	upstreamURL := client.BaseURL() + "/" + strings.TrimPrefix(subpath, "/")
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}
	playSessionID := r.URL.Query().Get("PlaySessionId")

	res, err := p.fetchCoalesced(r.Context(), client, upstreamURL)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", subpath).Msg("proxy fetch failed")
		http.Error(w, `{"error":"upstream_fetch_failed"}`, http.StatusInternalServerError)
		return
	}
	telemetry.ProxyRequestsTotal.WithLabelValues(statusClass(res.status)).Inc()

	switch {
	case res.status >= 500:
		// A dead transcode never recovers; tear the session down off the
		// request path and let the player renegotiate.
		p.cleanupByPlaySessionAsync(playSessionID)
		http.Error(w, `{"error":"upstream_transcode_failed"}`, http.StatusBadGateway)
	case res.status >= 400:
		w.WriteHeader(res.status)
		_, _ = w.Write(res.body)
	default:
		p.touchByPlaySession(playSessionID)
		if isPlaylist(subpath, res.contentType) {
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			_, _ = w.Write(RewritePlaylist(res.body, client.DeviceID(), playSessionID))
			return
		}
		if res.contentType != "" {
			w.Header().Set("Content-Type", res.contentType)
		}
		_, _ = w.Write(res.body)
	}
}

// fetchCoalesced joins an identical in-flight upstream fetch when one exists.
func (p *Proxy) fetchCoalesced(ctx context.Context, client *upstream.Client, upstreamURL string) (*fetchResult, error) {
	p.mu.Lock()
	if pending, ok := p.inflight[upstreamURL]; ok {
		p.mu.Unlock()
		telemetry.ProxyCoalescedTotal.Inc()
		select {
		case <-pending.done:
			return pending.res, pending.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	pending := &pendingFetch{done: make(chan struct{})}
	p.inflight[upstreamURL] = pending
	p.mu.Unlock()

	pending.res, pending.err = p.fetch(ctx, client, upstreamURL)
	close(pending.done)

	// Hold the entry briefly so the request burst right behind this one
	// still coalesces, then release.
	go func() {
		time.Sleep(releaseDelay)
		p.mu.Lock()
		delete(p.inflight, upstreamURL)
		p.mu.Unlock()
	}()

	return pending.res, pending.err
}

func (p *Proxy) fetch(ctx context.Context, client *upstream.Client, upstreamURL string) (*fetchResult, error) {
	resp, err := client.FetchRaw(ctx, upstreamURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &fetchResult{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

// Stop ends playback for an item: report the stop, delete the transcode, drop
// the session. Every step is best-effort.
func (p *Proxy) Stop(ctx context.Context, itemID, playSessionID string, positionMs int64) {
	client := p.clients()
	session, tracked := p.registry.Get(itemID)
	mediaSourceID := ""
	if tracked {
		mediaSourceID = session.MediaSourceID
		if playSessionID == "" {
			playSessionID = session.PlaySessionID
		}
	}
	if client != nil && playSessionID != "" {
		if err := client.StopPlaybackSession(ctx, itemID, mediaSourceID, playSessionID, positionMs); err != nil {
			p.logger.Debug().Err(err).Str("item_id", itemID).Msg("stop playback report failed")
		}
		if err := client.DeleteTranscodingJob(ctx, playSessionID); err != nil {
			p.logger.Debug().Err(err).Str("item_id", itemID).Msg("delete transcode failed")
		}
	}
	p.registry.Drop(itemID)
}

func (p *Proxy) touchByPlaySession(playSessionID string) {
	if playSessionID == "" {
		return
	}
	for _, s := range p.registry.All() {
		if s.PlaySessionID == playSessionID {
			p.registry.Touch(s.ItemID)
			return
		}
	}
}

func (p *Proxy) cleanupByPlaySessionAsync(playSessionID string) {
	if playSessionID == "" {
		return
	}
	for _, s := range p.registry.All() {
		if s.PlaySessionID == playSessionID {
			p.cleanupSessionAsync(s.ItemID, playSessionID)
			return
		}
	}
}

func (p *Proxy) cleanupSessionAsync(itemID, playSessionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p.Stop(ctx, itemID, playSessionID, 0)
	}()
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func isPlaylist(subpath, contentType string) bool {
	if strings.Contains(subpath, ".m3u8") {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "mpegurl") || strings.HasPrefix(ct, "text/plain")
}

// RewritePlaylist rewrites every media reference in an HLS playlist to point
// back at the proxy. Absolute URLs collapse to path+query; PlaySessionId and
// DeviceId are ensured on each entry; StartTimeTicks is stripped from segment
// URLs so mid-stream seeks don't restart the transcode.
func RewritePlaylist(playlist []byte, deviceID, playSessionID string) []byte {
	lines := strings.Split(string(playlist), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if !mediaLine.MatchString(trimmed) {
			continue
		}
		lines[i] = rewriteMediaURL(trimmed, deviceID, playSessionID)
	}
	return []byte(strings.Join(lines, "\n"))
}

func rewriteMediaURL(raw, deviceID, playSessionID string) string {
	pathPart := raw
	queryPart := ""
	if parsed, err := url.Parse(raw); err == nil {
		if parsed.IsAbs() {
			pathPart = parsed.Path
			queryPart = parsed.RawQuery
		} else if idx := strings.IndexByte(raw, '?'); idx >= 0 {
			pathPart = raw[:idx]
			queryPart = raw[idx+1:]
		}
	}

	query, err := url.ParseQuery(queryPart)
	if err != nil {
		query = url.Values{}
	}
	if playSessionID != "" && query.Get("PlaySessionId") == "" {
		query.Set("PlaySessionId", playSessionID)
	}
	if deviceID != "" && query.Get("DeviceId") == "" {
		query.Set("DeviceId", deviceID)
	}
	if strings.Contains(pathPart, ".ts") {
		query.Del("StartTimeTicks")
	}

	rewritten := ProxyPrefix + "/" + strings.TrimPrefix(pathPart, "/")
	if encoded := query.Encode(); encoded != "" {
		rewritten += "?" + encoded
	}
	return rewritten
}
