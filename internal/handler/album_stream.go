package handler

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/GoArmGo/PinAlbum/internal/viewsync"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 64
)

// Alert — сообщение об ошибке, показанное альбомом.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type streamMessage struct {
	Type    string           `json:"type"`
	Update  *viewsync.Update `json:"update,omitempty"`
	Alert   *Alert           `json:"alert,omitempty"`
	Enabled *bool            `json:"enabled,omitempty"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// AlbumStream — экран альбома для HTTP-клиентов. Сессия альбома видит его
// как usecase.AlbumView, хранилище видит его как store.Observer; пачки проходят
// через viewsync.Sync и рассылаются подключенным websocket-клиентам.
// Тот же поток с EntityPin служит списком меток карты.
type AlbumStream struct {
	sync   *viewsync.Sync
	hello  bool
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	enabled bool
	alerts  []Alert
	closed  bool
}

// NewAlbumStream создает поток альбома метки
func NewAlbumStream(pinID uuid.UUID, logger *slog.Logger) *AlbumStream {
	return newStream(store.EntityPhoto, true, logger.With("pin_id", pinID))
}

// NewPinsStream создает поток списка меток карты
func NewPinsStream(logger *slog.Logger) *AlbumStream {
	return newStream(store.EntityPin, false, logger.With("stream", "pins"))
}

func newStream(entity store.Entity, hello bool, logger *slog.Logger) *AlbumStream {
	s := &AlbumStream{
		hello:   hello,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
		enabled: true,
	}
	s.sync = viewsync.New(s, entity)
	return s
}

// OnBatch реализует store.Observer
func (s *AlbumStream) OnBatch(batch store.Batch) {
	s.sync.OnBatch(batch)
}

// PerformBatchUpdates реализует viewsync.CollectionView
func (s *AlbumStream) PerformBatchUpdates(update viewsync.Update) {
	s.broadcast(streamMessage{Type: "batch", Update: &update})
}

// SetNewCollectionEnabled реализует usecase.AlbumView
func (s *AlbumStream) SetNewCollectionEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	s.broadcast(streamMessage{Type: "action", Enabled: &enabled})
}

// ShowAlert реализует usecase.AlbumView
func (s *AlbumStream) ShowAlert(title, message string) {
	alert := Alert{Title: title, Message: message}
	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.mu.Unlock()
	s.broadcast(streamMessage{Type: "alert", Alert: &alert})
}

// Cancel отменяет незавершенные пачки и отключает клиентов
func (s *AlbumStream) Cancel() {
	s.sync.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
}

// Alerts возвращает все показанные сообщения
func (s *AlbumStream) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Alert(nil), s.alerts...)
}

// ClientCount возвращает число подключенных клиентов
func (s *AlbumStream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *AlbumStream) broadcast(msg streamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal stream message", "type", msg.Type, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// медленный клиент не должен тормозить главный цикл
			s.logger.Warn("websocket client too slow, disconnecting")
			close(c.send)
			delete(s.clients, c)
		}
	}
}

// Serve обслуживает websocket-соединение до его закрытия.
func (s *AlbumStream) Serve(conn *websocket.Conn) {
	client := &streamClient{conn: conn, send: make(chan []byte, clientSendSize)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "album closed"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	s.clients[client] = struct{}{}
	if s.hello {
		enabled := s.enabled
		// первым сообщением клиент альбома получает текущую доступность кнопки
		hello, _ := json.Marshal(streamMessage{Type: "action", Enabled: &enabled})
		client.send <- hello
	}
	s.mu.Unlock()

	s.logger.Info("websocket client connected", "clients", s.ClientCount())

	go s.writePump(client)
	s.readPump(client)
}

func (s *AlbumStream) readPump(c *streamClient) {
	defer func() {
		s.mu.Lock()
		if _, ok := s.clients[c]; ok {
			close(c.send)
			delete(s.clients, c)
		}
		s.mu.Unlock()
		s.logger.Info("websocket client disconnected")
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *AlbumStream) writePump(c *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
