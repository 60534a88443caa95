package store

import (
	"sort"
	"strings"
)

// searchIndex 小写子串检索：三元组倒排表缩小候选，再用 strings.Contains 校验。
// 查询短于 3 个字符时退化为全量扫描。
type searchIndex struct {
	docs     []string // 与 snapshot.entries 下标一一对应
	postings map[string][]int
}

func newSearchIndex(docs []string) *searchIndex {
	idx := &searchIndex{docs: docs, postings: make(map[string][]int)}
	for i, d := range docs {
		seen := make(map[string]struct{})
		for _, g := range trigrams(d) {
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			idx.postings[g] = append(idx.postings[g], i)
		}
	}
	return idx
}

// Search 返回命中文档的下标（升序）
func (s *searchIndex) Search(query string) []int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var candidates []int
	grams := trigrams(q)
	if len(grams) == 0 {
		candidates = make([]int, len(s.docs))
		for i := range s.docs {
			candidates[i] = i
		}
	} else {
		// 从最短的倒排表开始求交
		lists := make([][]int, 0, len(grams))
		for _, g := range grams {
			p, ok := s.postings[g]
			if !ok {
				return nil
			}
			lists = append(lists, p)
		}
		sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })
		candidates = lists[0]
		for _, l := range lists[1:] {
			candidates = intersect(candidates, l)
			if len(candidates) == 0 {
				return nil
			}
		}
	}

	out := make([]int, 0, len(candidates))
	for _, i := range candidates {
		if strings.Contains(s.docs[i], q) {
			out = append(out, i)
		}
	}
	return out
}

func trigrams(s string) []string {
	r := []rune(s)
	if len(r) < 3 {
		return nil
	}
	out := make([]string, 0, len(r)-2)
	for i := 0; i+3 <= len(r); i++ {
		out = append(out, string(r[i:i+3]))
	}
	return out
}

// intersect 两个升序下标表求交
func intersect(a, b []int) []int {
	out := make([]int, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
