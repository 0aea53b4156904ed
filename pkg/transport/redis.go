// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Transport backed by Redis streams (XADD/XREADGROUP/XACK/
// XRANGE/XDEL). MKSTREAM semantics are used so CreateGroup can target a
// stream that does not exist yet.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing redis client as a Transport.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Append issues XADD with an auto-generated id ("*").
func (r *Redis) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateGroup issues XGROUP CREATE with MKSTREAM, swallowing BUSYGROUP.
func (r *Redis) CreateGroup(ctx context.Context, stream, group, start string) error {
	if start == "" {
		start = "$"
	}
	err := r.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// ReadGroup issues XREADGROUP for consumer within group. blockMs < 0
// blocks indefinitely (Redis: 0 means forever); blockMs == 0 does not
// block. On timeout, redis.Nil is swallowed and an empty slice returned.
func (r *Redis) ReadGroup(ctx context.Context, stream, group, consumer string, count int, blockMs int) ([]Entry, error) {
	block := time.Duration(blockMs) * time.Millisecond
	if blockMs < 0 {
		block = 0 // redis: block forever
	} else if blockMs == 0 {
		block = -1 // go-redis omits BLOCK for a negative duration
	}

	res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if blockMs >= 0 && isTimeoutErr(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Entry
	for _, s := range res {
		for _, msg := range s.Messages {
			out = append(out, Entry{ID: msg.ID, Fields: stringifyValues(msg.Values)})
		}
	}
	return out, nil
}

// Ack issues XACK.
func (r *Redis) Ack(ctx context.Context, stream, group, entryID string) error {
	return r.client.XAck(ctx, stream, group, entryID).Err()
}

// Range issues XRANGE, supporting "-"/"+" open bounds natively.
func (r *Redis) Range(ctx context.Context, stream, from, to string, count int) ([]Entry, error) {
	if from == "" {
		from = "-"
	}
	if to == "" {
		to = "+"
	}

	var res []redis.XMessage
	var err error
	if count > 0 {
		res, err = r.client.XRangeN(ctx, stream, from, to, int64(count)).Result()
	} else {
		res, err = r.client.XRange(ctx, stream, from, to).Result()
	}
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(res))
	for _, msg := range res {
		out = append(out, Entry{ID: msg.ID, Fields: stringifyValues(msg.Values)})
	}
	return out, nil
}

// Del issues XDEL.
func (r *Redis) Del(ctx context.Context, stream string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.client.XDel(ctx, stream, ids...).Err()
}

// Len issues XLEN.
func (r *Redis) Len(ctx context.Context, stream string) (int64, error) {
	return r.client.XLen(ctx, stream).Result()
}

// SupportsRange reports that the Redis transport fully supports Range.
func (r *Redis) SupportsRange() bool { return true }

func stringifyValues(values map[string]interface{}) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case []byte:
			out[k] = string(tv)
		default:
			out[k] = toString(tv)
		}
	}
	return out
}

func toString(v interface{}) string {
	switch tv := v.(type) {
	case int64:
		return strconv.FormatInt(tv, 10)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	default:
		return ""
	}
}

func isTimeoutErr(err error) bool {
	return strings.Contains(err.Error(), "i/o timeout") || strings.Contains(err.Error(), "context deadline exceeded")
}
