package mainloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped возвращается, если цикл уже остановлен.
var ErrStopped = errors.New("main loop stopped")

// Loop — единственный "главный" контекст исполнения. Хранилище записей и
// состояние представлений изменяются только внутри замыканий, выполняемых
// циклом, по одному и в порядке постановки.
type Loop struct {
	tasks   chan func()
	stopped chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// New создает цикл с очередью указанной емкости.
func New(queueSize int, logger *slog.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Loop{
		tasks:   make(chan func(), queueSize),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run выполняет задачи до отмены ctx. Блокирует вызывающую горутину.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("main loop started")
	defer l.stop()

	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-ctx.Done():
			l.logger.Info("main loop stopped", "reason", ctx.Err())
			return
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("main loop task panicked", "panic", r)
		}
	}()
	fn()
}

func (l *Loop) stop() {
	l.once.Do(func() { close(l.stopped) })
}

// Post ставит fn в очередь. Можно вызывать из любой горутины.
// Возвращает false, если цикл уже остановлен.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Do выполняет fn на цикле и ждет результата.
// Нельзя вызывать изнутри задачи цикла: это дедлок.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if !l.Post(func() { done <- fn() }) {
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
