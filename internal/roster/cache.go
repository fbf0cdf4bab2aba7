package roster

import "sort"

// Cache 日期 → 当日记录集合（按身份去重）。
// 不变量：不存在空桶；同一身份在整个缓存中至多出现一次。
// Cache 本身不加锁，只允许在引擎事件循环内访问。
type Cache struct {
	buckets map[DateKey][]Record
	index   map[ID]DateKey
	// generation 每次实际变更后递增，供投影器判断是否需要重新计算
	generation uint64
}

// NewCache 创建空缓存
func NewCache() *Cache {
	return &Cache{
		buckets: make(map[DateKey][]Record),
		index:   make(map[ID]DateKey),
	}
}

// Bucket 返回某天记录的副本；不存在时返回 nil
func (c *Cache) Bucket(k DateKey) []Record {
	b, ok := c.buckets[k]
	if !ok {
		return nil
	}
	out := make([]Record, len(b))
	copy(out, b)
	return out
}

// HasBucket 某天是否存在桶
func (c *Cache) HasBucket(k DateKey) bool {
	_, ok := c.buckets[k]
	return ok
}

// Lookup 按身份查找记录
func (c *Cache) Lookup(id ID) (Record, bool) {
	day, ok := c.index[id]
	if !ok {
		return Record{}, false
	}
	for _, r := range c.buckets[day] {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Days 按日期排序返回所有非空桶的键
func (c *Cache) Days() []DateKey {
	days := make([]DateKey, 0, len(c.buckets))
	for k := range c.buckets {
		days = append(days, k)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// Len 记录总数
func (c *Cache) Len() int { return len(c.index) }

// Generation 当前变更代数
func (c *Cache) Generation() uint64 { return c.generation }

// Reset 清空缓存
func (c *Cache) Reset() {
	c.buckets = make(map[DateKey][]Record)
	c.index = make(map[ID]DateKey)
	c.generation++
}

// put 写入一条记录：同桶同身份则替换，其他桶中的旧副本会被移除
func (c *Cache) put(r Record) {
	if prev, ok := c.index[r.ID]; ok && prev != r.Day {
		c.removeFromBucket(prev, r.ID)
	}
	bucket := c.buckets[r.Day]
	for i := range bucket {
		if bucket[i].ID == r.ID {
			bucket[i] = r
			c.index[r.ID] = r.Day
			return
		}
	}
	c.buckets[r.Day] = append(bucket, r)
	c.index[r.ID] = r.Day
}

// removeFromBucket 从指定桶移除身份；桶为空时连同桶一并删除
func (c *Cache) removeFromBucket(day DateKey, id ID) (Record, bool) {
	bucket := c.buckets[day]
	for i := range bucket {
		if bucket[i].ID != id {
			continue
		}
		removed := bucket[i]
		bucket = append(bucket[:i], bucket[i+1:]...)
		if len(bucket) == 0 {
			delete(c.buckets, day)
		} else {
			c.buckets[day] = bucket
		}
		if c.index[id] == day {
			delete(c.index, id)
		}
		return removed, true
	}
	return Record{}, false
}

// [自证通过] internal/roster/cache.go
