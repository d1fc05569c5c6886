package viewsync

import (
	"log/slog"
	"sync"

	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/google/uuid"
)

type album struct {
	model *ListModel
	sync  *Sync
}

// Replica — копия всех альбомов, собранная только из пачек изменений.
// Каждый альбом ведется своим Sync, так же как коллекция на экране.
//
// Пачки одного потока (Stream) применяются по возрастанию Seq, повторы
// отбрасываются. Новый поток (перезапуск сервера) сбрасывает реплику.
type Replica struct {
	mu      sync.Mutex
	stream  string
	lastSeq uint64
	pins    *ListModel
	pinSync *Sync
	albums  map[uuid.UUID]*album
	logger  *slog.Logger
}

// NewReplica создает пустую реплику
func NewReplica(logger *slog.Logger) *Replica {
	r := &Replica{logger: logger.With("component", "replica")}
	r.reset("")
	return r
}

func (r *Replica) reset(stream string) {
	r.stream = stream
	r.lastSeq = 0
	r.pins = NewListModel()
	r.pinSync = New(r.pins, store.EntityPin)
	r.albums = make(map[uuid.UUID]*album)
}

// Apply применяет пачку из потока stream. Возвращает false, если пачка
// уже была применена.
func (r *Replica) Apply(stream string, batch store.Batch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stream != r.stream {
		if r.stream != "" {
			r.logger.Warn("new store stream, replica reset", "old_stream", r.stream, "stream", stream)
		}
		r.reset(stream)
	}
	if batch.Seq <= r.lastSeq {
		r.logger.Debug("duplicate batch skipped", "seq", batch.Seq, "last_seq", r.lastSeq)
		return false
	}
	if r.lastSeq != 0 && batch.Seq != r.lastSeq+1 {
		r.logger.Warn("store batch gap, replica may diverge", "seq", batch.Seq, "last_seq", r.lastSeq)
	}
	r.lastSeq = batch.Seq

	var deletedPins []uuid.UUID
	perPin := make(map[uuid.UUID][]store.ChangeEvent)
	var order []uuid.UUID
	for _, ev := range batch.Events {
		switch ev.Entity {
		case store.EntityPin:
			switch ev.Kind {
			case store.Insert:
				r.albumOf(ev.PinID)
			case store.Delete:
				deletedPins = append(deletedPins, ev.PinID)
			}
		case store.EntityPhoto:
			if _, seen := perPin[ev.PinID]; !seen {
				order = append(order, ev.PinID)
			}
			perPin[ev.PinID] = append(perPin[ev.PinID], ev)
		}
	}

	r.pinSync.OnBatch(batch)
	for _, pinID := range order {
		r.albumOf(pinID).sync.OnBatch(store.Batch{Seq: batch.Seq, Events: perPin[pinID]})
	}
	for _, pinID := range deletedPins {
		if a, ok := r.albums[pinID]; ok {
			a.sync.Cancel()
			delete(r.albums, pinID)
		}
	}
	return true
}

func (r *Replica) albumOf(pinID uuid.UUID) *album {
	a, ok := r.albums[pinID]
	if !ok {
		model := NewListModel()
		a = &album{model: model, sync: New(model, store.EntityPhoto)}
		r.albums[pinID] = a
	}
	return a
}

// Pins возвращает метки в порядке создания
func (r *Replica) Pins() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pins.Items()
}

// Album возвращает фото метки в порядке альбома
func (r *Replica) Album(pinID uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.albums[pinID]; ok {
		return a.model.Items()
	}
	return nil
}

// Stats возвращает количество меток и фото в реплике
func (r *Replica) Stats() (pins, photos int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.albums {
		photos += a.model.Len()
	}
	return r.pins.Len(), photos
}
