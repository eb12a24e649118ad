/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package iptv serializes channels and schedules for external IPTV players:
// an M3U playlist and an XMLTV guide. Both are pure views over the store,
// cached briefly because guide requests arrive in bursts.
package iptv

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/prevue/internal/cache"
	"github.com/friendsincode/prevue/internal/clock"
	"github.com/friendsincode/prevue/internal/models"
	"github.com/friendsincode/prevue/internal/store"
)

// DefaultEPGHours is the guide window emitted when the client asks for none.
const DefaultEPGHours = 24

// xmltvTime is the XMLTV timestamp layout.
const xmltvTime = "20060102150405 -0700"

// Emitter renders IPTV outputs.
type Emitter struct {
	store   *store.Store
	aligner clock.Aligner
	cache   *cache.Cache
	logger  zerolog.Logger

	now func() time.Time
}

// New constructs an emitter. cache may be nil (no caching).
func New(st *store.Store, aligner clock.Aligner, c *cache.Cache, logger zerolog.Logger) *Emitter {
	return &Emitter{
		store:   st,
		aligner: aligner,
		cache:   c,
		logger:  logger.With().Str("component", "iptv").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ChannelID renders the stable XMLTV/M3U channel id for a tuner number.
func ChannelID(number int) string {
	return fmt.Sprintf("ch-%d", number)
}

// Playlist renders the M3U playlist. baseURL is the externally reachable
// address clients will stream from.
func (e *Emitter) Playlist(ctx context.Context, baseURL string) (string, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	channels, err := e.store.ListChannels(ctx)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%d:%s", len(channels), baseURL)
	if e.cache != nil {
		if data, ok := e.cache.GetPlaylist(ctx, key); ok {
			return string(data), nil
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#EXTM3U url-tvg=%q\n", baseURL+"/api/iptv/epg.xml")
	for _, ch := range channels {
		fmt.Fprintf(&b, "#EXTINF:-1 tvg-id=%q tvg-name=%q tvg-chno=\"%d\" tvg-logo=%q group-title=%q,%s\n",
			ChannelID(ch.Number), ch.Name, ch.Number, channelLogo(ch), groupTitle(ch), ch.Name)
		fmt.Fprintf(&b, "%s/api/iptv/channel/%d\n", baseURL, ch.Number)
	}
	out := b.String()
	if e.cache != nil {
		e.cache.SetPlaylist(ctx, key, []byte(out))
	}
	return out, nil
}

// channelLogo is the tvg-logo value. Channels have no stored art yet, so the
// attribute is emitted empty; players fall back to their own placeholders.
func channelLogo(models.Channel) string {
	return ""
}

func groupTitle(ch models.Channel) string {
	switch ch.Kind {
	case models.ChannelCustom:
		return "My Channels"
	default:
		return "Prevue"
	}
}

// XMLTV document types, matching the DTD subset players actually read.
type xmltvTV struct {
	XMLName    xml.Name         `xml:"tv"`
	Generator  string           `xml:"generator-info-name,attr"`
	Channels   []xmltvChannel   `xml:"channel"`
	Programmes []xmltvProgramme `xml:"programme"`
}

type xmltvChannel struct {
	ID          string   `xml:"id,attr"`
	DisplayName []string `xml:"display-name"`
}

type xmltvProgramme struct {
	Start    string      `xml:"start,attr"`
	Stop     string      `xml:"stop,attr"`
	Channel  string      `xml:"channel,attr"`
	Title    string      `xml:"title"`
	SubTitle string      `xml:"sub-title,omitempty"`
	Desc     string      `xml:"desc,omitempty"`
	Date     string      `xml:"date,omitempty"`
	Rating   *xmltvValue `xml:"rating,omitempty"`
	Icon     *xmltvIcon  `xml:"icon,omitempty"`
}

type xmltvValue struct {
	Value string `xml:"value"`
}

type xmltvIcon struct {
	Src string `xml:"src,attr"`
}

// EPG renders the XMLTV guide covering [now, now+hours).
func (e *Emitter) EPG(ctx context.Context, baseURL string, hours int) (string, error) {
	if hours <= 0 {
		hours = DefaultEPGHours
	}
	now := e.now()
	channels, err := e.store.ListChannels(ctx)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%d:%d:%s", len(channels), hours, baseURL)
	if e.cache != nil {
		if data, ok := e.cache.GetEPG(ctx, key); ok {
			return string(data), nil
		}
	}

	doc := xmltvTV{Generator: "prevue"}
	from, to := now, now.Add(time.Duration(hours)*time.Hour)
	for _, ch := range channels {
		doc.Channels = append(doc.Channels, xmltvChannel{
			ID:          ChannelID(ch.Number),
			DisplayName: []string{ch.Name, fmt.Sprintf("%d %s", ch.Number, ch.Name)},
		})
		blocks, err := e.store.GetScheduleBlocksInRange(ctx, ch.ID, from, to)
		if err != nil {
			return "", err
		}
		for _, block := range blocks {
			for _, p := range block.Programs {
				if !p.EndTime.After(from) || !p.StartTime.Before(to) {
					continue
				}
				doc.Programmes = append(doc.Programmes, programme(ch, p))
			}
		}
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	out := xml.Header + string(data)
	if e.cache != nil {
		e.cache.SetEPG(ctx, key, []byte(out))
	}
	return out, nil
}

func programme(ch models.Channel, p models.ScheduleProgram) xmltvProgramme {
	prog := xmltvProgramme{
		Start:   p.StartTime.UTC().Format(xmltvTime),
		Stop:    p.EndTime.UTC().Format(xmltvTime),
		Channel: ChannelID(ch.Number),
		Title:   p.Title,
	}
	if p.IsInterstitial() {
		return prog
	}
	prog.SubTitle = p.Subtitle
	if p.Year > 0 {
		prog.Date = fmt.Sprintf("%d", p.Year)
	}
	if p.Rating != "" {
		prog.Rating = &xmltvValue{Value: p.Rating}
	}
	if p.ThumbURL != "" {
		prog.Icon = &xmltvIcon{Src: p.ThumbURL}
	}
	return prog
}
