/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/friendsincode/prevue/internal/library"
)

// syncPageSize is the page size used when the one-shot fetch fails and the
// client falls back to pagination.
const syncPageSize = 1000

// itemFields is the field projection requested on library queries. Everything
// the scheduler and filters need, nothing more.
const itemFields = "Genres,Overview,Studios,DateCreated,Tags,People,OfficialRating,ProductionYear,UserData"

type wireUserData struct {
	Played           bool       `json:"Played"`
	IsFavorite       bool       `json:"IsFavorite"`
	PlayedPercentage float64    `json:"PlayedPercentage"`
	LastPlayedDate   *time.Time `json:"LastPlayedDate"`
}

type wirePerson struct {
	Name string `json:"Name"`
	Type string `json:"Type"`
}

type wireStudio struct {
	Name string `json:"Name"`
}

type wireItem struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	SeriesID          string            `json:"SeriesId"`
	SeriesName        string            `json:"SeriesName"`
	ParentIndexNumber int               `json:"ParentIndexNumber"`
	IndexNumber       int               `json:"IndexNumber"`
	RunTimeTicks      int64             `json:"RunTimeTicks"`
	Genres            []string          `json:"Genres"`
	OfficialRating    string            `json:"OfficialRating"`
	ProductionYear    int               `json:"ProductionYear"`
	DateCreated       time.Time         `json:"DateCreated"`
	Overview          string            `json:"Overview"`
	Studios           []wireStudio      `json:"Studios"`
	People            []wirePerson      `json:"People"`
	Tags              []string          `json:"Tags"`
	ImageTags         map[string]string `json:"ImageTags"`
	BackdropImageTags []string          `json:"BackdropImageTags"`
	UserData          wireUserData      `json:"UserData"`
	MediaSources      []struct {
		Container    string            `json:"Container"`
		MediaStreams []wireMediaStream `json:"MediaStreams"`
	} `json:"MediaSources"`
}

type itemsPage struct {
	Items            []wireItem `json:"Items"`
	TotalRecordCount int        `json:"TotalRecordCount"`
}

func (c *Client) toItem(w wireItem) library.Item {
	kind := ""
	switch w.Type {
	case "Movie":
		kind = library.KindMovie
	case "Episode":
		kind = library.KindEpisode
	}
	item := library.Item{
		ID:             w.ID,
		Kind:           kind,
		Name:           w.Name,
		SeriesID:       w.SeriesID,
		SeriesName:     w.SeriesName,
		SeasonIndex:    w.ParentIndexNumber,
		EpisodeIndex:   w.IndexNumber,
		RunTimeTicks:   w.RunTimeTicks,
		Genres:         w.Genres,
		OfficialRating: w.OfficialRating,
		ProductionYear: w.ProductionYear,
		DateCreated:    w.DateCreated,
		Overview:       w.Overview,
		Tags:           w.Tags,
		UserData: library.UserData{
			Played:           w.UserData.Played,
			IsFavorite:       w.UserData.IsFavorite,
			PlayedPercentage: w.UserData.PlayedPercentage,
			LastPlayedAt:     w.UserData.LastPlayedDate,
		},
	}
	for _, studio := range w.Studios {
		if studio.Name != "" {
			item.Studios = append(item.Studios, studio.Name)
		}
	}
	for _, person := range w.People {
		if person.Name != "" {
			item.People = append(item.People, library.Person{Name: person.Name, Role: person.Type})
		}
	}
	if tag := w.ImageTags["Primary"]; tag != "" {
		item.PrimaryImageURL = fmt.Sprintf("%s/Items/%s/Images/Primary?tag=%s", c.baseURL, w.ID, tag)
	}
	if len(w.BackdropImageTags) > 0 {
		item.BackdropImageURL = fmt.Sprintf("%s/Items/%s/Images/Backdrop/0?tag=%s", c.baseURL, w.ID, w.BackdropImageTags[0])
	}
	return item
}

// SyncProgress reports sync advancement to an optional callback.
type SyncProgress struct {
	Fetched int
	Total   int
}

// SyncLibrary fetches every movie and episode the user can see. It tries a
// single unpaginated request first; servers that reject or truncate it get
// the paginated path.
func (c *Client) SyncLibrary(ctx context.Context, onProgress func(SyncProgress)) ([]library.Item, error) {
	base := url.Values{}
	base.Set("Recursive", "true")
	base.Set("IncludeItemTypes", "Movie,Episode")
	base.Set("Fields", itemFields)

	var page itemsPage
	err := c.do(ctx, http.MethodGet, "/Users/"+c.userID+"/Items?"+base.Encode(), nil, &page)
	if err == nil && len(page.Items) >= page.TotalRecordCount {
		items := make([]library.Item, 0, len(page.Items))
		for _, w := range page.Items {
			items = append(items, c.toItem(w))
		}
		if onProgress != nil {
			onProgress(SyncProgress{Fetched: len(items), Total: len(items)})
		}
		return items, nil
	}
	if err != nil {
		c.logger.Debug().Err(err).Msg("one-shot library fetch failed, falling back to pagination")
	}

	var items []library.Item
	for start := 0; ; start += syncPageSize {
		query := url.Values{}
		for k, v := range base {
			query[k] = v
		}
		query.Set("StartIndex", strconv.Itoa(start))
		query.Set("Limit", strconv.Itoa(syncPageSize))

		var page itemsPage
		if err := c.do(ctx, http.MethodGet, "/Users/"+c.userID+"/Items?"+query.Encode(), nil, &page); err != nil {
			return nil, err
		}
		for _, w := range page.Items {
			items = append(items, c.toItem(w))
		}
		if onProgress != nil {
			onProgress(SyncProgress{Fetched: len(items), Total: page.TotalRecordCount})
		}
		if len(page.Items) < syncPageSize || len(items) >= page.TotalRecordCount {
			break
		}
	}
	return items, nil
}

// GetItem fetches one item with the full field projection.
func (c *Client) GetItem(ctx context.Context, itemID string) (*library.Item, error) {
	query := url.Values{}
	query.Set("Fields", itemFields)
	var w wireItem
	if err := c.do(ctx, http.MethodGet, "/Users/"+c.userID+"/Items/"+itemID+"?"+query.Encode(), nil, &w); err != nil {
		return nil, err
	}
	item := c.toItem(w)
	return &item, nil
}

// ItemDetails is GetItem plus source media properties the player surfaces:
// the file container and whether the video stream is HDR.
type ItemDetails struct {
	Item        library.Item
	Container   string
	IsHDRSource bool
}

// GetItemDetails fetches one item with its media sources resolved.
func (c *Client) GetItemDetails(ctx context.Context, itemID string) (*ItemDetails, error) {
	query := url.Values{}
	query.Set("Fields", itemFields+",MediaSources")
	var w wireItem
	if err := c.do(ctx, http.MethodGet, "/Users/"+c.userID+"/Items/"+itemID+"?"+query.Encode(), nil, &w); err != nil {
		return nil, err
	}
	details := &ItemDetails{Item: c.toItem(w)}
	if len(w.MediaSources) > 0 {
		details.Container = w.MediaSources[0].Container
		details.IsHDRSource = hasHDRStream(w.MediaSources[0].MediaStreams)
	}
	return details, nil
}

// Container is a collection or playlist on Upstream, referenced by filters.
type Container struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) listContainers(ctx context.Context, includeType string) ([]Container, error) {
	query := url.Values{}
	query.Set("Recursive", "true")
	query.Set("IncludeItemTypes", includeType)
	var page itemsPage
	if err := c.do(ctx, http.MethodGet, "/Users/"+c.userID+"/Items?"+query.Encode(), nil, &page); err != nil {
		return nil, err
	}
	containers := make([]Container, 0, len(page.Items))
	for _, w := range page.Items {
		containers = append(containers, Container{ID: w.ID, Name: w.Name})
	}
	return containers, nil
}

// GetCollections lists the user's box sets.
func (c *Client) GetCollections(ctx context.Context) ([]Container, error) {
	return c.listContainers(ctx, "BoxSet")
}

// GetPlaylists lists the user's playlists.
func (c *Client) GetPlaylists(ctx context.Context) ([]Container, error) {
	return c.listContainers(ctx, "Playlist")
}

// GetContainerItemIDs returns the item ids inside a collection or playlist.
func (c *Client) GetContainerItemIDs(ctx context.Context, containerID string) ([]string, error) {
	query := url.Values{}
	query.Set("ParentId", containerID)
	query.Set("Recursive", "true")
	query.Set("IncludeItemTypes", "Movie,Episode")
	var page itemsPage
	if err := c.do(ctx, http.MethodGet, "/Users/"+c.userID+"/Items?"+query.Encode(), nil, &page); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Items))
	for _, w := range page.Items {
		ids = append(ids, w.ID)
	}
	return ids, nil
}
