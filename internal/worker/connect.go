package worker

import (
	"fmt"
	"net/http"
	"time"

	"github.com/chatmesh/chatmesh/internal/apperr"
	"github.com/chatmesh/chatmesh/internal/broadcast"
	"github.com/chatmesh/chatmesh/internal/rpc"
)

// HandleConnect terminates the ChatService.Connect bidirectional stream:
// one client, admitted onto exactly one channel's ChannelCore for the
// lifetime of the underlying websocket connection.
//
// The capability presented here is the one the manager's Listen RPC
// just minted — it names the channel and, critically, the worker
// address the manager resolved via the hash ring. A client holding a
// capability for a different worker is rejected outright rather than
// silently accepted: accepting it would let a stale or forged capability
// land a user on the wrong worker's ChannelCore.
func (w *Worker) HandleConnect(rw http.ResponseWriter, r *http.Request) {
	raw, err := rpc.BearerToken(r)
	if err != nil {
		rpc.WriteError(rw, err)
		w.countConnect("rejected")
		return
	}
	claims, err := w.Tokens.VerifyCapability(raw)
	if err != nil {
		rpc.WriteError(rw, err)
		w.countConnect("rejected")
		return
	}
	if claims.WorkerAddr != w.AdvertiseAddr {
		rpc.WriteError(rw, apperr.New(apperr.PermissionDenied, "capability names a different worker"))
		w.countConnect("rejected")
		return
	}

	core, err := w.getOrLoadCore(r.Context(), claims.ChannelID)
	if err != nil {
		rpc.WriteError(rw, err)
		w.countConnect("rejected")
		return
	}

	shutdown, err := core.registerUser(claims.UserID)
	if err != nil {
		rpc.WriteError(rw, err)
		w.countConnect("rejected")
		return
	}

	conn, err := rpc.Upgrader.Upgrade(rw, r, nil)
	if err != nil {
		core.unregisterUser(claims.UserID)
		w.Log.Warn().Err(err).Msg("websocket upgrade failed")
		w.countConnect("rejected")
		return
	}
	stream := rpc.NewStream(conn)
	w.countConnect("accepted")
	if w.Metrics != nil {
		w.Metrics.ActiveConnections.Inc()
	}

	sub, unsubscribe := core.Subscribe()
	limiterKey := fmt.Sprintf("%s:%d", claims.UserID, claims.ChannelID)

	w.runConnection(stream, core, sub, shutdown, claims.UserID, limiterKey)

	unsubscribe()
	core.unregisterUser(claims.UserID)
	w.ConnLimiter.Remove(limiterKey)
	w.dropCoreIfEmpty(claims.ChannelID)
	stream.Close()
	if w.Metrics != nil {
		w.Metrics.ActiveConnections.Dec()
	}
}

func (w *Worker) countConnect(result string) {
	if w.Metrics != nil {
		w.Metrics.ConnectTotal.WithLabelValues(result).Inc()
	}
}

// runConnection pumps both directions of one client's Connect stream
// until either side closes, the manager fires this user's (or the whole
// channel's) shutdown signal, or the subscriber is dropped for lagging.
// It blocks until the session is over; callers do the teardown.
func (w *Worker) runConnection(stream *rpc.Stream, core *ChannelCore, sub *broadcast.Subscriber, shutdown chan struct{}, userID string, limiterKey string) {
	done := make(chan struct{})
	go w.inboundPump(stream, core, userID, limiterKey, done)

	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := stream.SendJSON(rpc.WireMessage{
				UserID:    msg.UserID,
				Timestamp: msg.Timestamp,
				Text:      msg.Content.Text,
				Audio:     msg.Content.Audio,
			}); err != nil {
				return
			}
		case <-sub.Lagged():
			return
		case <-shutdown:
			return
		case <-done:
			return
		}
	}
}

// inboundPump reads client frames and republishes them on the channel's
// topic, overwriting user_id and timestamp so a client cannot spoof
// either — the worker is the only party trusted to stamp a message's
// origin and time, per the report/connect trust boundary.
func (w *Worker) inboundPump(stream *rpc.Stream, core *ChannelCore, userID string, limiterKey string, done chan struct{}) {
	defer close(done)
	for {
		var in rpc.WireMessage
		if err := stream.RecvJSON(&in); err != nil {
			return
		}
		if !w.ConnLimiter.Allow(limiterKey) {
			w.Log.Debug().Str("client", limiterKey).Msg("frame dropped by connection rate limiter")
			continue
		}
		core.Publish(broadcast.Message{
			UserID:    userID,
			Timestamp: time.Now().UnixMilli(),
			Content:   broadcast.Content{Text: in.Text, Audio: in.Audio},
		})
		if w.Metrics != nil {
			w.Metrics.BroadcastMessages.Inc()
		}
	}
}
