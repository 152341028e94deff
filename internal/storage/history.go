package storage

// MaxHistoryEntries 历史记录上限（5 分钟一次约 17 小时）
const MaxHistoryEntries = 200

// History 有界的巡检历史，最旧在前，超出上限时先淘汰最旧的记录
type History struct {
	entries []*Snapshot
}

// NewHistory 由已有记录构建历史（超出上限时只保留最新的部分）
func NewHistory(entries []*Snapshot) *History {
	h := &History{entries: make([]*Snapshot, 0, len(entries)+1)}
	for _, e := range entries {
		if e != nil {
			h.entries = append(h.entries, e)
		}
	}
	h.truncate()
	return h
}

// Append 追加一条记录，超出上限时淘汰最旧的记录
func (h *History) Append(s *Snapshot) {
	if s == nil {
		return
	}
	h.entries = append(h.entries, s)
	h.truncate()
}

func (h *History) truncate() {
	if n := len(h.entries); n > MaxHistoryEntries {
		// 复制到新切片，释放被淘汰记录的引用
		kept := make([]*Snapshot, MaxHistoryEntries, MaxHistoryEntries+1)
		copy(kept, h.entries[n-MaxHistoryEntries:])
		h.entries = kept
	}
}

// Len 记录条数
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Latest 最近一条记录，空历史返回 nil
func (h *History) Latest() *Snapshot {
	if h.Len() == 0 {
		return nil
	}
	return h.entries[len(h.entries)-1]
}

// Entries 返回记录副本（最旧在前）
func (h *History) Entries() []*Snapshot {
	if h == nil {
		return nil
	}
	out := make([]*Snapshot, len(h.entries))
	copy(out, h.entries)
	return out
}

// Tail 返回最近 n 条记录（最旧在前）
func (h *History) Tail(n int) []*Snapshot {
	total := h.Len()
	if n <= 0 || n >= total {
		return h.Entries()
	}
	out := make([]*Snapshot, n)
	copy(out, h.entries[total-n:])
	return out
}
