package roster

// ═══════════════════════════════════════════════════════════
// 对账规则：区间加载器、变更推送、轮询兜底共用
// ═══════════════════════════════════════════════════════════
//
// 每个操作在事件循环的单个任务内完成，投影器不会观察到中间状态。

// MergeAdd 增量合并：同身份替换，不移除无关记录。
// 返回受影响的日期（含记录被移走的旧日期）。
func (c *Cache) MergeAdd(records ...Record) []DateKey {
	if len(records) == 0 {
		return nil
	}
	touched := make([]DateKey, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if prev, ok := c.index[r.ID]; ok && prev != r.Day {
			touched = append(touched, prev)
		}
		c.put(r)
		touched = append(touched, r.Day)
	}
	if len(touched) > 0 {
		c.generation++
	}
	return touched
}

// FullReplace 全量替换：删除区间内所有桶后再合并权威集合，
// 结果是缓存在区间内的部分与 records 按日分组后完全相等。
// 日期不在区间内的记录被忽略。
func (c *Cache) FullReplace(span Span, records []Record) []DateKey {
	touched := make([]DateKey, 0, len(c.buckets))
	for day, bucket := range c.buckets {
		if !span.ContainsKey(day) {
			continue
		}
		for _, r := range bucket {
			if c.index[r.ID] == day {
				delete(c.index, r.ID)
			}
		}
		delete(c.buckets, day)
		touched = append(touched, day)
	}
	for _, r := range records {
		if r.ID == "" || !span.ContainsKey(r.Day) {
			continue
		}
		if prev, ok := c.index[r.ID]; ok && prev != r.Day {
			touched = append(touched, prev)
		}
		c.put(r)
		touched = append(touched, r.Day)
	}
	c.generation++
	return touched
}

// DeleteByID 按身份删除：扫描全部桶，空桶随之删除。
// 返回被删除记录所在的日期。
func (c *Cache) DeleteByID(id ID) []DateKey {
	var touched []DateKey
	for day, bucket := range c.buckets {
		for _, r := range bucket {
			if r.ID == id {
				c.removeFromBucket(day, id)
				touched = append(touched, day)
				break
			}
		}
	}
	delete(c.index, id)
	if len(touched) > 0 {
		c.generation++
	}
	return touched
}

// [自证通过] internal/roster/reconciler.go
