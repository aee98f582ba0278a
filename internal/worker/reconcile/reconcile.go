// Package reconcile はオブジェクトストレージとメタデータの整合性スイープを提供する。
//
// アップロードの部分失敗（オブジェクト格納済み・メタデータ未登録）や
// 削除の部分失敗（メタデータ削除済み・オブジェクト残存）で生じた
// 孤児オブジェクトを定期バッチで回収する。逆向きの不整合
// （メタデータ行はあるがオブジェクトがない）は削除せずログで報告する。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/docshare/internal/storage"
)

// DefaultGrace は孤児と判定するまでの猶予期間。
// 進行中のアップロード（オブジェクト格納済み・メタデータ登録前）を
// 誤って削除しないための窓。
const DefaultGrace = 24 * time.Hour

// MetadataIndex はスイープに必要なメタデータ照会の最小インターフェース。
// repository.DocumentRepositoryが満たす。
type MetadataIndex interface {
	ExistsByStorageKey(ctx context.Context, storageKey string) (bool, error)
	ListStorageKeys(ctx context.Context) ([]string, error)
}

// Job はストレージとメタデータの整合性スイープジョブ。
// 定期実行のバッチジョブとして設計されており、冪等に動作する。
type Job struct {
	store  storage.ObjectStore
	docs   MetadataIndex
	logger *slog.Logger
	Grace  time.Duration // 孤児判定の猶予期間

	// now はテストで時刻を固定するために差し替え可能にする。
	now func() time.Time
}

// NewJob は新しいJobを生成する。graceが0以下の場合はDefaultGraceを使用する。
func NewJob(store storage.ObjectStore, docs MetadataIndex, logger *slog.Logger, grace time.Duration) *Job {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Job{
		store:  store,
		docs:   docs,
		logger: logger,
		Grace:  grace,
		now:    time.Now,
	}
}

// Run は整合性スイープを1回実行する。
//
//  1. メタデータ行を持たないオブジェクトのうち、猶予期間を超えたものを削除する。
//  2. オブジェクトが存在しないメタデータ行をログで報告する（削除はしない）。
//
// 個々のオブジェクトの処理失敗はログに残して続行し、スイープ全体は止めない。
func (j *Job) Run(ctx context.Context) error {
	start := j.now()

	objectKeys, err := j.store.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list object keys: %w", err)
	}

	var orphansDeleted, orphansSkipped, keysUnparsable int
	objectKeySet := make(map[string]struct{}, len(objectKeys))

	for _, key := range objectKeys {
		objectKeySet[key] = struct{}{}

		exists, err := j.docs.ExistsByStorageKey(ctx, key)
		if err != nil {
			j.logger.Error("failed to check metadata for object",
				slog.String("storage_key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		if exists {
			continue
		}

		// キー先頭のエポックミリ秒からアップロード時刻を復元する。
		// 解析できないキーはこのシステムの管理外とみなし、削除せず報告に留める。
		uploadedAt, ok := uploadTimeFromKey(key)
		if !ok {
			j.logger.Warn("object key does not match upload key format, leaving untouched",
				slog.String("storage_key", key),
			)
			keysUnparsable++
			continue
		}
		if start.Sub(uploadedAt) < j.Grace {
			// 進行中アップロードの可能性があるため猶予期間内は残す
			orphansSkipped++
			continue
		}

		if err := j.store.Delete(ctx, key); err != nil {
			j.logger.Error("failed to delete orphan object",
				slog.String("storage_key", key),
				slog.String("error", err.Error()),
			)
			continue
		}

		j.logger.Info("orphan object deleted",
			slog.String("storage_key", key),
		)
		orphansDeleted++
	}

	// 逆向きの不整合: メタデータ行はあるがオブジェクトがない
	storageKeys, err := j.docs.ListStorageKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list metadata storage keys: %w", err)
	}

	var danglingRows int
	for _, key := range storageKeys {
		if _, found := objectKeySet[key]; !found {
			j.logger.Warn("metadata row references missing object",
				slog.String("storage_key", key),
			)
			danglingRows++
		}
	}

	j.logger.Info("reconcile sweep completed",
		slog.Int("objects_total", len(objectKeys)),
		slog.Int("orphans_deleted", orphansDeleted),
		slog.Int("orphans_in_grace", orphansSkipped),
		slog.Int("keys_unparsable", keysUnparsable),
		slog.Int("dangling_rows", danglingRows),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// uploadTimeFromKey はストレージキー先頭のエポックミリ秒を解析する。
// キー形式が `<epoch-ms>-<filename>` に一致しない場合はfalseを返す。
func uploadTimeFromKey(key string) (time.Time, bool) {
	prefix, _, found := strings.Cut(key, "-")
	if !found {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || millis <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}
