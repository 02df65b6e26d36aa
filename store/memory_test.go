package store

import (
	"context"
	"testing"

	"github.com/maxwelljhuang/knytt/core"
)

func TestMemoryStore_GetSet(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	if _, err := ms.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
		t.Fatalf("缺失 key 应返回 NOT_FOUND，实际 %v", err)
	}

	if err := ms.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	got, err := ms.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = (%s, %v)", got, err)
	}

	if err := ms.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete error = %v", err)
	}
	if _, err := ms.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Fatalf("删除后应返回 NOT_FOUND，实际 %v", err)
	}
}

func TestMemoryStore_ZRangeOrder(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	_ = ms.ZAdd(ctx, "hot", 1.0, "a")
	_ = ms.ZAdd(ctx, "hot", 3.0, "b")
	_ = ms.ZAdd(ctx, "hot", 2.0, "c")

	members, err := ms.ZRange(ctx, "hot", 0, 1)
	if err != nil {
		t.Fatalf("ZRange error = %v", err)
	}
	if len(members) != 2 || members[0] != "b" || members[1] != "c" {
		t.Fatalf("ZRange = %v，期望 [b c]（按分数降序）", members)
	}
}

func TestMemoryStore_HIncrBy(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	n, err := ms.HIncrBy(ctx, "stats:p1", "views", 1)
	if err != nil || n != 1 {
		t.Fatalf("HIncrBy = (%d, %v)", n, err)
	}
	n, _ = ms.HIncrBy(ctx, "stats:p1", "views", 4)
	if n != 5 {
		t.Fatalf("累计 = %d，期望 5", n)
	}

	v, err := ms.HGet(ctx, "stats:p1", "views")
	if err != nil || string(v) != "5" {
		t.Fatalf("HGet = (%s, %v)", v, err)
	}
}

func TestMemoryStore_BatchGetSkipsMissing(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()
	ctx := context.Background()

	_ = ms.BatchSet(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")})
	got, err := ms.BatchGet(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("BatchGet error = %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Fatalf("BatchGet = %v", got)
	}
}
