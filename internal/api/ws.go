/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/prevue/internal/events"
	"github.com/friendsincode/prevue/internal/telemetry"
)

// heartbeatInterval is how often the push feed proves liveness to clients.
const heartbeatInterval = 30 * time.Second

// wsEnvelope is the push message frame.
type wsEnvelope struct {
	Type    string         `json:"type"`
	Payload events.Payload `json:"payload,omitempty"`
}

// handleWebSocket upgrades the connection and forwards push events until the
// client goes away. Auth ran in the gate middleware; browsers pass the key as
// ?api_key= because they cannot set headers on the upgrade request.
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	clientID := uuid.NewString()
	a.logger.Debug().Str("client_id", clientID).Msg("websocket connected")

	ctx := r.Context()
	subs := make(map[events.EventType]events.Subscriber, len(events.PushTypes))
	for _, eventType := range events.PushTypes {
		subs[eventType] = a.bus.Subscribe(eventType)
	}
	defer func() {
		for eventType, sub := range subs {
			a.bus.Unsubscribe(eventType, sub)
		}
	}()

	if err := writeEnvelope(ctx, conn, wsEnvelope{
		Type:    string(events.EventConnected),
		Payload: events.Payload{"client_id": clientID},
	}); err != nil {
		return
	}

	// Drain client frames so pings and close frames are processed; inbound
	// payloads are ignored.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		var envelope wsEnvelope
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-readerDone:
			a.logger.Debug().Str("client_id", clientID).Msg("websocket closed by client")
			return
		case <-heartbeat.C:
			envelope = wsEnvelope{Type: string(events.EventHeartbeat)}
		case payload := <-subs[events.EventGenerationProgress]:
			envelope = wsEnvelope{Type: string(events.EventGenerationProgress), Payload: payload}
		case payload := <-subs[events.EventLibrarySynced]:
			envelope = wsEnvelope{Type: string(events.EventLibrarySynced), Payload: payload}
		case payload := <-subs[events.EventChannelsRegenerated]:
			envelope = wsEnvelope{Type: string(events.EventChannelsRegenerated), Payload: payload}
		}
		if err := writeEnvelope(ctx, conn, envelope); err != nil {
			a.logger.Debug().Err(err).Str("client_id", clientID).Msg("websocket write failed")
			return
		}
	}
}

func writeEnvelope(ctx context.Context, conn *ws.Conn, envelope wsEnvelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, data)
}
