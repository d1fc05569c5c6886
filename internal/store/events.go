package store

import "github.com/google/uuid"

// ChangeKind — вид изменения записи.
type ChangeKind int

const (
	Insert ChangeKind = iota + 1
	Update
	Delete
	Move
)

func (k ChangeKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	case Move:
		return "move"
	default:
		return "unknown"
	}
}

// Entity — тип записи, к которой относится событие.
type Entity int

const (
	EntityPin Entity = iota + 1
	EntityPhoto
)

func (e Entity) String() string {
	if e == EntityPin {
		return "pin"
	}
	return "photo"
}

// NoIndex ставится в OldIndex у вставок и в NewIndex у удалений.
const NoIndex = -1

// ChangeEvent описывает изменение одной записи.
// Индексы считаются внутри коллекции записи: метка в списке всех меток,
// фото в альбоме своей метки. OldIndex относится к состоянию до фиксации,
// NewIndex к состоянию после.
type ChangeEvent struct {
	Kind     ChangeKind
	Entity   Entity
	PinID    uuid.UUID
	PhotoID  uuid.UUID
	OldIndex int
	NewIndex int
}

// Batch — все события одной фиксации. Получение Batch и есть сигнал
// завершения пачки: наблюдатель применяет события целиком.
type Batch struct {
	Seq    uint64
	Events []ChangeEvent
}

// Observer получает пачки изменений в порядке фиксаций.
type Observer interface {
	OnBatch(batch Batch)
}

// ObserverFunc позволяет использовать функцию как Observer.
type ObserverFunc func(batch Batch)

func (f ObserverFunc) OnBatch(batch Batch) { f(batch) }

type queryKind int

const (
	queryAll queryKind = iota
	queryPins
	queryPhotos
)

// Query ограничивает, какие события получает наблюдатель.
type Query struct {
	kind  queryKind
	pinID uuid.UUID
}

// PhotosOf — фото, принадлежащие метке pinID.
func PhotosOf(pinID uuid.UUID) Query { return Query{kind: queryPhotos, pinID: pinID} }

// AllPins — список меток на карте.
func AllPins() Query { return Query{kind: queryPins} }

// Everything — все события хранилища.
func Everything() Query { return Query{kind: queryAll} }

func (q Query) matches(ev ChangeEvent) bool {
	switch q.kind {
	case queryPins:
		return ev.Entity == EntityPin
	case queryPhotos:
		return ev.Entity == EntityPhoto && ev.PinID == q.pinID
	default:
		return true
	}
}

func (q Query) filter(events []ChangeEvent) []ChangeEvent {
	var out []ChangeEvent
	for _, ev := range events {
		if q.matches(ev) {
			out = append(out, ev)
		}
	}
	return out
}
