package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"dca-console/internal/strategy"
)

const (
	draftsKeyPrefix       = "drafts:"
	draftsSnapshotVersion = 1
)

var ErrSnapshotVersion = errors.New("unsupported drafts snapshot version")

type DraftsSnapshot struct {
	Version     int              `msgpack:"v"`
	Account     string           `msgpack:"account"`
	Drafts      []strategy.Draft `msgpack:"drafts"`
	UpdatedAtMS int64            `msgpack:"updated_at_ms"`
}

// DraftsKey namespaces saved drafts per account. Addresses are compared
// case-insensitively.
func DraftsKey(account string) string {
	return draftsKeyPrefix + strings.ToLower(strings.TrimSpace(account))
}

func LoadDrafts(ctx context.Context, store Store, account string) (DraftsSnapshot, bool, error) {
	if store == nil {
		return DraftsSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, DraftsKey(account))
	if err != nil {
		return DraftsSnapshot{}, false, err
	}
	if !ok || len(raw) == 0 {
		return DraftsSnapshot{}, false, nil
	}
	var snapshot DraftsSnapshot
	if err := msgpack.Unmarshal(raw, &snapshot); err != nil {
		return DraftsSnapshot{}, false, fmt.Errorf("decode drafts snapshot: %w", err)
	}
	if snapshot.Version != draftsSnapshotVersion {
		return DraftsSnapshot{}, false, fmt.Errorf("%w: %d", ErrSnapshotVersion, snapshot.Version)
	}
	return snapshot, true, nil
}

func SaveDrafts(ctx context.Context, store Store, account string, drafts []strategy.Draft) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	snapshot := DraftsSnapshot{
		Version:     draftsSnapshotVersion,
		Account:     account,
		Drafts:      drafts,
		UpdatedAtMS: time.Now().UnixMilli(),
	}
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode drafts snapshot: %w", err)
	}
	return store.Set(ctx, DraftsKey(account), payload)
}
