// Package redis provides a Redis-backed implementation of the store.Index
// port. Each secret is a hash at secret:<id>; the set secrets:index tracks
// live ids for sweeping and reconciliation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haukened/onetimeview/internal/domain"
	"github.com/haukened/onetimeview/internal/store"
)

var _ store.Index = (*Index)(nil)

const indexKey = "secrets:index"

// Hash field names.
const (
	fKind      = "kind"
	fContent   = "content"
	fBlob      = "blob_handle"
	fFileName  = "file_name"
	fMime      = "mime_type"
	fSize      = "size"
	fPassword  = "password_hash"
	fExpiresAt = "expires_at"
	fViews     = "view_count"
	fMaxViews  = "max_views"
	fPremium   = "premium"
	fCreatedAt = "created_at"
)

// Scripts return a negative integer when the guard fails and the record
// fields (HGETALL form) otherwise.
var incrementViewScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return -1
end
local views = tonumber(redis.call('HGET', key, 'view_count'))
local max = tonumber(redis.call('HGET', key, 'max_views'))
if views >= max then
	return -2
end
local exp = redis.call('HGET', key, 'expires_at')
if exp and exp ~= '' and tonumber(exp) < tonumber(ARGV[1]) then
	return -2
end
redis.call('HINCRBY', key, 'view_count', 1)
return redis.call('HGETALL', key)
`)

var setExpiryScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
redis.call('HSET', KEYS[1], 'expires_at', ARGV[1])
return 1
`)

var claimScript = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
if #fields == 0 then
	return -1
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return fields
`)

// Index implements store.Index on a go-redis client.
type Index struct {
	client redis.UniversalClient
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Index {
	return &Index{client: client}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, options *redis.Options) (*Index, error) {
	client := redis.NewClient(options)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return New(client), nil
}

// Ping reports whether Redis is reachable.
func (i *Index) Ping(ctx context.Context) error { return i.client.Ping(ctx).Err() }

// Close releases the client.
func (i *Index) Close() error { return i.client.Close() }

func secretKey(id string) string { return "secret:" + id }

// Insert writes the hash and registers the id in one transaction.
func (i *Index) Insert(ctx context.Context, s domain.Secret) error {
	_, err := i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, secretKey(s.ID.String()), toFields(s))
		pipe.SAdd(ctx, indexKey, s.ID.String())
		return nil
	})
	return err
}

// Get reads the hash for id.
func (i *Index) Get(ctx context.Context, id string) (domain.Secret, error) {
	m, err := i.client.HGetAll(ctx, secretKey(id)).Result()
	if err != nil {
		return domain.Secret{}, err
	}
	if len(m) == 0 {
		return domain.Secret{}, domain.ErrNotFound
	}
	return fromFields(id, m)
}

// IncrementView runs the guarded increment as a server-side script.
func (i *Index) IncrementView(ctx context.Context, id string, now time.Time) (domain.Secret, error) {
	res, err := incrementViewScript.Run(ctx, i.client, []string{secretKey(id)}, now.UnixMilli()).Result()
	if err != nil {
		return domain.Secret{}, err
	}
	return decodeScriptRecord(id, res)
}

// SetExpiry overwrites expires_at if the record still exists.
func (i *Index) SetExpiry(ctx context.Context, id string, at time.Time) error {
	n, err := setExpiryScript.Run(ctx, i.client, []string{secretKey(id)}, at.UnixMilli()).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete claims the record: the script reads, deletes and unregisters it
// atomically so exactly one caller gets ok=true.
func (i *Index) Delete(ctx context.Context, id string) (domain.Secret, bool, error) {
	res, err := claimScript.Run(ctx, i.client, []string{secretKey(id), indexKey}, id).Result()
	if err != nil {
		return domain.Secret{}, false, err
	}
	s, err := decodeScriptRecord(id, res)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Secret{}, false, nil
	}
	if err != nil {
		return domain.Secret{}, false, err
	}
	return s, true, nil
}

// Expired loads every registered record and filters in process.
func (i *Index) Expired(ctx context.Context, now time.Time) ([]domain.Secret, error) {
	all, err := i.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Secret
	for _, s := range all {
		if domain.IsExpired(s, now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// BlobHandles returns handles of registered records that own a blob.
func (i *Index) BlobHandles(ctx context.Context) ([]string, error) {
	all, err := i.all(ctx)
	if err != nil {
		return nil, err
	}
	var handles []string
	for _, s := range all {
		if s.HasBlob() {
			handles = append(handles, s.BlobHandle)
		}
	}
	return handles, nil
}

// all fetches every registered record with one pipelined round trip. Ids
// whose hash has vanished are dropped from the index set.
func (i *Index) all(ctx context.Context) ([]domain.Secret, error) {
	ids, err := i.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = i.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for n, id := range ids {
			cmds[n] = pipe.HGetAll(ctx, secretKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Secret, 0, len(ids))
	var stale []any
	for n, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			stale = append(stale, ids[n])
			continue
		}
		s, err := fromFields(ids[n], m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		_ = i.client.SRem(ctx, indexKey, stale...).Err()
	}
	return out, nil
}

func toFields(s domain.Secret) map[string]any {
	expires := ""
	if s.ExpiresAt != nil {
		expires = strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10)
	}
	return map[string]any{
		fKind:      s.Kind.String(),
		fContent:   s.Content,
		fBlob:      s.BlobHandle,
		fFileName:  s.FileName,
		fMime:      s.MimeType,
		fSize:      s.Size,
		fPassword:  s.PasswordHash,
		fExpiresAt: expires,
		fViews:     s.ViewCount,
		fMaxViews:  s.MaxViews,
		fPremium:   strconv.FormatBool(s.Premium),
		fCreatedAt: s.CreatedAt.UnixMilli(),
	}
}

func fromFields(id string, m map[string]string) (domain.Secret, error) {
	s := domain.Secret{
		ID:           domain.SecretID(id),
		Kind:         domain.ContentKind(m[fKind]),
		Content:      m[fContent],
		BlobHandle:   m[fBlob],
		FileName:     m[fFileName],
		MimeType:     m[fMime],
		PasswordHash: m[fPassword],
		Premium:      m[fPremium] == "true",
	}
	var err error
	if s.Size, err = strconv.ParseInt(m[fSize], 10, 64); err != nil {
		return domain.Secret{}, fmt.Errorf("decode %s: %w", fSize, err)
	}
	if s.ViewCount, err = strconv.Atoi(m[fViews]); err != nil {
		return domain.Secret{}, fmt.Errorf("decode %s: %w", fViews, err)
	}
	if s.MaxViews, err = strconv.Atoi(m[fMaxViews]); err != nil {
		return domain.Secret{}, fmt.Errorf("decode %s: %w", fMaxViews, err)
	}
	created, err := strconv.ParseInt(m[fCreatedAt], 10, 64)
	if err != nil {
		return domain.Secret{}, fmt.Errorf("decode %s: %w", fCreatedAt, err)
	}
	s.CreatedAt = time.UnixMilli(created).UTC()
	if v := m[fExpiresAt]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.Secret{}, fmt.Errorf("decode %s: %w", fExpiresAt, err)
		}
		t := time.UnixMilli(ms).UTC()
		s.ExpiresAt = &t
	}
	return s, nil
}

// decodeScriptRecord converts a script reply into a record. Integer replies
// are guard failures and map to ErrNotFound.
func decodeScriptRecord(id string, res any) (domain.Secret, error) {
	switch v := res.(type) {
	case int64:
		return domain.Secret{}, domain.ErrNotFound
	case []any:
		if len(v)%2 != 0 {
			return domain.Secret{}, errors.New("malformed script reply")
		}
		m := make(map[string]string, len(v)/2)
		for n := 0; n < len(v); n += 2 {
			k, _ := v[n].(string)
			val, _ := v[n+1].(string)
			m[k] = val
		}
		return fromFields(id, m)
	}
	return domain.Secret{}, fmt.Errorf("unexpected script reply %T", res)
}
