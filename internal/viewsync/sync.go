package viewsync

import (
	"sort"
	"sync"

	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/google/uuid"
)

// Move — перемещение элемента между позициями.
type Move struct {
	From int       `json:"from"`
	To   int       `json:"to"`
	ID   uuid.UUID `json:"id"`
}

// Item — элемент и его позиция.
type Item struct {
	Index int       `json:"index"`
	ID    uuid.UUID `json:"id"`
}

// Update — одна пачка мутаций коллекции, применяемая целиком.
// Deleted содержит индексы до пачки, Inserted и Reloaded после нее,
// как в performBatchUpdates у коллекций iOS.
type Update struct {
	Seq      uint64 `json:"seq"`
	Deleted  []Item `json:"deleted,omitempty"`
	Inserted []Item `json:"inserted,omitempty"`
	Reloaded []Item `json:"reloaded,omitempty"`
	Moved    []Move `json:"moved,omitempty"`
}

// Empty сообщает, что пачка ничего не меняет
func (u Update) Empty() bool {
	return len(u.Deleted) == 0 && len(u.Inserted) == 0 && len(u.Reloaded) == 0 && len(u.Moved) == 0
}

// CollectionView получает пачку целиком, промежуточных состояний не видит.
type CollectionView interface {
	PerformBatchUpdates(update Update)
}

// Sync подписывается на пачки хранилища и воспроизводит их в CollectionView.
// После Cancel новые пачки отбрасываются.
type Sync struct {
	view   CollectionView
	entity store.Entity

	mu        sync.Mutex
	cancelled bool
}

// New создает синхронизатор для записей одного вида.
func New(view CollectionView, entity store.Entity) *Sync {
	return &Sync{view: view, entity: entity}
}

// OnBatch реализует store.Observer.
func (s *Sync) OnBatch(batch store.Batch) {
	if s.Cancelled() {
		return
	}
	update := s.collect(batch)
	if update.Empty() {
		return
	}
	s.view.PerformBatchUpdates(update)
}

// Cancel отменяет все будущие пачки.
func (s *Sync) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// Cancelled сообщает, отменен ли синхронизатор
func (s *Sync) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Sync) collect(batch store.Batch) Update {
	update := Update{Seq: batch.Seq}
	for _, ev := range batch.Events {
		if ev.Entity != s.entity {
			continue
		}
		id := ev.PhotoID
		if ev.Entity == store.EntityPin {
			id = ev.PinID
		}
		switch ev.Kind {
		case store.Insert:
			update.Inserted = append(update.Inserted, Item{Index: ev.NewIndex, ID: id})
		case store.Delete:
			update.Deleted = append(update.Deleted, Item{Index: ev.OldIndex, ID: id})
		case store.Update:
			update.Reloaded = append(update.Reloaded, Item{Index: ev.NewIndex, ID: id})
		case store.Move:
			update.Moved = append(update.Moved, Move{From: ev.OldIndex, To: ev.NewIndex, ID: id})
		}
	}
	return update
}

// ListModel — упорядоченный список ID, который ведет себя как коллекция
// на экране. Используется репликой воркера и тестами.
type ListModel struct {
	mu    sync.RWMutex
	items []uuid.UUID
}

// NewListModel создает список с начальным содержимым
func NewListModel(items ...uuid.UUID) *ListModel {
	return &ListModel{items: append([]uuid.UUID(nil), items...)}
}

// PerformBatchUpdates применяет пачку: сначала удаления и исходные позиции
// перемещений по убыванию индексов, затем вставки по возрастанию.
func (m *ListModel) PerformBatchUpdates(update Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removals := make([]int, 0, len(update.Deleted)+len(update.Moved))
	for _, d := range update.Deleted {
		removals = append(removals, d.Index)
	}
	for _, mv := range update.Moved {
		removals = append(removals, mv.From)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(removals)))
	for _, idx := range removals {
		if idx < 0 || idx >= len(m.items) {
			continue
		}
		m.items = append(m.items[:idx], m.items[idx+1:]...)
	}

	inserts := make([]Item, 0, len(update.Inserted)+len(update.Moved))
	inserts = append(inserts, update.Inserted...)
	for _, mv := range update.Moved {
		inserts = append(inserts, Item{Index: mv.To, ID: mv.ID})
	}
	sort.Slice(inserts, func(i, j int) bool { return inserts[i].Index < inserts[j].Index })
	for _, it := range inserts {
		idx := min(max(it.Index, 0), len(m.items))
		m.items = append(m.items, uuid.Nil)
		copy(m.items[idx+1:], m.items[idx:])
		m.items[idx] = it.ID
	}
}

// Items возвращает копию списка
func (m *ListModel) Items() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]uuid.UUID(nil), m.items...)
}

// Len возвращает количество элементов
func (m *ListModel) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
