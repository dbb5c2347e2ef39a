// Package classify 基于希伯来语/英语双语关键词为新闻打话题标签。
//
// 评分规则：标题与正文拼接并转小写后，统计每个分类关键词的出现次数（子串匹配，不分词）。
// 得分最高者胜出；全为 0 时返回 General；最高分并列时按 table 的声明顺序取第一个。
package classify

import "strings"

// Category 封闭的话题集合
type Category string

const (
	Politics      Category = "politics"
	Business      Category = "business"
	Technology    Category = "technology"
	Sports        Category = "sports"
	Entertainment Category = "entertainment"
	Health        Category = "health"
	Science       Category = "science"
	General       Category = "general"
)

type keywordRow struct {
	category Category
	hebrew   []string
	english  []string
}

// table 的顺序即并列时的裁决顺序，不要改成 map
var table = []keywordRow{
	{
		category: Politics,
		hebrew:   []string{"פוליטי", "ממשלה", "כנסת", "בחירות", "מפלגה"},
		english:  []string{"politics", "government", "election", "party", "minister"},
	},
	{
		category: Business,
		hebrew:   []string{"כלכלה", "בורסה", "שוק", "השקעות", "חברה"},
		english:  []string{"business", "economy", "market", "stock", "company"},
	},
	{
		category: Technology,
		hebrew:   []string{"טכנולוגיה", "הייטק", "חדשנות", "דיגיטל", "תוכנה"},
		english:  []string{"technology", "tech", "innovation", "digital", "software"},
	},
	{
		category: Sports,
		hebrew:   []string{"ספורט", "כדורגל", "כדורסל", "תחרות", "שחקן"},
		english:  []string{"sports", "football", "basketball", "game", "player"},
	},
	{
		category: Entertainment,
		hebrew:   []string{"בידור", "תרבות", "סרט", "מוזיקה", "טלוויזיה"},
		english:  []string{"entertainment", "culture", "movie", "music", "tv"},
	},
	{
		category: Health,
		hebrew:   []string{"בריאות", "רפואה", "מחלה", "טיפול", "חולה"},
		english:  []string{"health", "medical", "disease", "treatment", "patient"},
	},
	{
		category: Science,
		hebrew:   []string{"מדע", "מחקר", "חלל", "פיזיקה", "כימיה"},
		english:  []string{"science", "research", "space", "physics", "chemistry"},
	},
}

// All 返回全部分类（General 在最后），顺序固定
func All() []Category {
	out := make([]Category, 0, len(table)+1)
	for _, row := range table {
		out = append(out, row.category)
	}
	return append(out, General)
}

// Parse 解析分类名（忽略大小写与首尾空白）
func Parse(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range All() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Valid 判断 s 是否为合法分类
func Valid(s string) bool {
	_, ok := Parse(s)
	return ok
}

// Classify 纯函数：相同输入永远得到相同分类
func Classify(title, body string) Category {
	text := strings.ToLower(title + " " + body)

	best := General
	bestScore := 0
	for _, row := range table {
		score := countAll(text, row.hebrew) + countAll(text, row.english)
		// 严格大于才替换，并列保留先出现的分类
		if score > bestScore {
			best = row.category
			bestScore = score
		}
	}
	return best
}

func countAll(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		n += strings.Count(text, kw)
	}
	return n
}
