package repository

import (
	"context"
	"time"

	"repokit/changefeed"
	"repokit/errors"
	"repokit/logging"
	"repokit/source"
	"repokit/validation"
)

// Add 新增实体；实体实现 validation.Validatable 时先校验
func (r *Repository[T]) Add(ctx context.Context, entity *T) error {
	return r.write(ctx, "add", changefeed.Added, r.store.Insert, entity)
}

// AddRange 批量新增；配置了工作单元时在同一事务中执行
func (r *Repository[T]) AddRange(ctx context.Context, entities ...*T) error {
	return r.writeRange(ctx, "add", changefeed.Added, r.store.Insert, entities)
}

// Update 更新实体
func (r *Repository[T]) Update(ctx context.Context, entity *T) error {
	return r.write(ctx, "update", changefeed.Updated, r.store.Update, entity)
}

// UpdateRange 批量更新
func (r *Repository[T]) UpdateRange(ctx context.Context, entities ...*T) error {
	return r.writeRange(ctx, "update", changefeed.Updated, r.store.Update, entities)
}

// Remove 删除实体
func (r *Repository[T]) Remove(ctx context.Context, entity *T) error {
	return r.write(ctx, "remove", changefeed.Removed, r.store.Delete, entity)
}

// RemoveRange 批量删除
func (r *Repository[T]) RemoveRange(ctx context.Context, entities ...*T) error {
	return r.writeRange(ctx, "remove", changefeed.Removed, r.store.Delete, entities)
}

type writeFunc[T any] func(ctx context.Context, entity *T) error

func (r *Repository[T]) write(ctx context.Context, op string, kind changefeed.Kind, fn writeFunc[T], entity *T) (err error) {
	if entity == nil {
		return errors.NewInvalidArgument("entity", "entity is nil")
	}
	start := time.Now()
	defer func() { r.observe(ctx, op, start, err, 1) }()

	if kind != changefeed.Removed {
		if err := validation.Check(entity); err != nil {
			return err
		}
	}
	if err := fn(ctx, entity); err != nil {
		return err
	}
	r.notify(ctx, kind, entity)
	return nil
}

func (r *Repository[T]) writeRange(ctx context.Context, op string, kind changefeed.Kind, fn writeFunc[T], entities []*T) error {
	for i, e := range entities {
		if e == nil {
			return errors.NewInvalidArgument("entities", "entity is nil").WithContext("index", i)
		}
	}
	if len(entities) == 0 {
		return nil
	}

	run := func(ctx context.Context) error {
		for _, e := range entities {
			if err := r.write(ctx, op, kind, fn, e); err != nil {
				return err
			}
		}
		return nil
	}
	if r.uow != nil {
		return r.uow.Do(ctx, run)
	}
	return run(ctx)
}

// notify 发布失败只记录日志：写入已经成功，不能再向调用方报告失败
func (r *Repository[T]) notify(ctx context.Context, kind changefeed.Kind, entity *T) {
	if r.feed == nil {
		return
	}
	var keys []any
	if k, ok := r.store.(source.Keyed[T]); ok {
		keys = k.Keys(entity)
	}
	if err := r.feed.Publish(ctx, changefeed.Change{Entity: r.name, Kind: kind, Keys: keys}); err != nil {
		r.logger.Warn(ctx, "change notification failed", logging.String("kind", string(kind)), logging.Error(err))
	}
}
