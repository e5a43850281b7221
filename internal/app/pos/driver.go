package pos

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/slog"

	"salepoint/internal/domain/sync"
)

// Driver — фоновый цикл синхронизации: периодический пуш очереди,
// периодический пулл изменений и немедленный пуш по сигналу о новой
// операции. Останавливается по отмене контекста.
type Driver struct {
	app          *App
	log          *slog.Logger
	pushInterval time.Duration
	pullInterval time.Duration
}

func NewDriver(app *App, log *slog.Logger, pushInterval, pullInterval time.Duration) *Driver {
	if pushInterval <= 0 {
		pushInterval = 15 * time.Second
	}
	if pullInterval <= 0 {
		pullInterval = time.Minute
	}
	return &Driver{
		app:          app,
		log:          log,
		pushInterval: pushInterval,
		pullInterval: pullInterval,
	}
}

// Run крутит цикл до отмены контекста. Ошибки отдельных проходов
// логируются и не останавливают цикл: следующая попытка придет по тику.
func (d *Driver) Run(ctx context.Context) error {
	pushTicker := time.NewTicker(d.pushInterval)
	defer pushTicker.Stop()
	pullTicker := time.NewTicker(d.pullInterval)
	defer pullTicker.Stop()

	// Стартовый проход: очередь могла накопиться, пока касса была
	// выключена.
	d.push(ctx)
	d.pull(ctx)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("цикл синхронизации остановлен")
			return ctx.Err()
		case <-d.app.Notify():
			d.push(ctx)
		case <-pushTicker.C:
			d.push(ctx)
		case <-pullTicker.C:
			d.pull(ctx)
		}
	}
}

func (d *Driver) push(ctx context.Context) {
	n, err := d.app.uploader.Push(ctx)
	switch {
	case errors.Is(err, sync.ErrAlreadyInSync):
	case errors.Is(err, context.Canceled):
	case err != nil:
		d.log.Warn("проход отправки завершился ошибкой", slog.String("error", err.Error()))
	case n > 0:
		d.log.Info("очередь вытолкнута", slog.Int("items", n))
	}
}

func (d *Driver) pull(ctx context.Context) {
	if err := d.app.puller.Pull(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.log.Warn("проход пулла завершился ошибкой", slog.String("error", err.Error()))
	}
}
