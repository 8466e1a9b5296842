package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"htmlchat/internal/chat"
	"htmlchat/internal/gateway/session"
	"htmlchat/internal/ui"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingEvery    = (wsPongWait * 9) / 10
	wsMaxReadBytes = 4 << 20
	wsQueueSize    = 32
)

// Same-origin check is left to the upgrader default: the session rides on
// a cookie.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type wsInbound struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	HTML      string `json:"html,omitempty"`
	MessageID *int   `json:"messageId,omitempty"`
}

type wsOutbound struct {
	Type    string         `json:"type"`
	State   *chat.Snapshot `json:"state,omitempty"`
	HTML    string         `json:"html,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`

	// closeAfter makes the writer end the connection once the frame is out.
	closeAfter bool
}

// HandleWS streams rendered snapshots of the caller's session and accepts
// chat actions. A slow client only ever misses intermediate snapshots.
func (s *Service) HandleWS(w http.ResponseWriter, r *http.Request) {
	sess, cookie := s.resolveSession(r)
	var header http.Header
	if cookie != nil {
		header = http.Header{"Set-Cookie": {cookie.String()}}
	}

	conn, err := wsUpgrader.Upgrade(w, r, header)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("session", sess.ID))
	logger.Debug("websocket connected")
	defer logger.Debug("websocket disconnected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(wsMaxReadBytes)
	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		logger.Warn("websocket set read deadline failed", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		s.sessions.Lookup(sess.ID)
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan wsOutbound, wsQueueSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		runWSWriter(ctx, conn, writeCh, writeFrame)
	}()

	go s.streamSnapshots(ctx, sess.Store, writeCh, logger)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			cancel()
			<-writerDone
			return
		}
		s.sessions.Lookup(sess.ID)

		var in wsInbound
		if err := json.Unmarshal(raw, &in); err != nil {
			pushWS(writeCh, wsOutbound{Type: "error", Code: "invalid_argument", Message: "invalid JSON frame"})
			continue
		}
		if out, ok := s.dispatchWS(sess, in, logger); ok {
			pushWS(writeCh, out)
		}
	}
}

func (s *Service) dispatchWS(sess *session.Session, in wsInbound, logger *zap.Logger) (wsOutbound, bool) {
	var err error
	switch msgType := strings.ToLower(strings.TrimSpace(in.Type)); msgType {
	case "":
		return wsOutbound{Type: "error", Code: "invalid_argument", Message: "type is required"}, true
	case "ping":
		return wsOutbound{Type: "pong"}, true
	case "send":
		err = sess.Store.SendMessage(in.Text)
	case "show_panel":
		err = showPanel(sess.Store, in.HTML, in.MessageID)
	case "close_panel":
		sess.Store.CloseSidePanel()
	default:
		return wsOutbound{Type: "error", Code: "invalid_argument", Message: "unsupported type: " + msgType}, true
	}
	if err != nil {
		logger.Info("websocket action rejected", zap.String("type", in.Type), zap.Error(err))
		_, body := classify(err)
		return wsOutbound{Type: "error", Code: body.Code, Message: body.Message}, true
	}
	return wsOutbound{}, false
}

// streamSnapshots renders every snapshot of the store onto the socket.
// When the store closes under the connection the client is told and
// disconnected.
func (s *Service) streamSnapshots(ctx context.Context, store *chat.Store, writeCh chan wsOutbound, logger *zap.Logger) {
	for snap := range store.Subscribe(ctx) {
		html, err := ui.RenderSnapshot(snap)
		if err != nil {
			logger.Error("render snapshot failed", zap.Uint64("version", snap.Version), zap.Error(err))
			continue
		}
		pushWS(writeCh, wsOutbound{Type: "snapshot", State: &snap, HTML: html})
	}
	if ctx.Err() == nil && store.Closed() {
		_, body := classify(chat.ErrClosed)
		pushWS(writeCh, wsOutbound{Type: "error", Code: body.Code, Message: body.Message, closeAfter: true})
	}
}

// runWSWriter owns every write on conn. It closes conn when it stops on a
// write error so the blocked reader wakes up instead of waiting out the pong
// deadline.
func runWSWriter(ctx context.Context, conn *websocket.Conn, writeCh <-chan wsOutbound, write func(*websocket.Conn, wsOutbound) error) {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case out := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				_ = conn.Close()
				return
			}
			if err := write(conn, out); err != nil {
				_ = conn.Close()
				return
			}
			if out.closeAfter {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, out.Code),
					time.Now().Add(wsWriteWait))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				_ = conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, out wsOutbound) error {
	wc, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(wc)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}

func pushWS(writeCh chan wsOutbound, out wsOutbound) {
	if writeCh == nil {
		return
	}
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
