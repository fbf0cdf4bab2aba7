package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrNotFound 记录不存在（数据访问层统一返回，gorm.ErrRecordNotFound 在仓储层映射为此错误）
var ErrNotFound = errors.New("记录不存在")

// ErrEngineClosed 同步引擎已关闭
var ErrEngineClosed = errors.New("同步引擎已关闭")
