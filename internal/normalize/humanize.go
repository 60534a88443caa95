package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// lexicon slug 常见缩写修正（键为小写 token）
var lexicon = map[string]string{
	"me":    "Main Event",
	"ft":    "Final Table",
	"ev":    "Event",
	"nlh":   "NLH",
	"plo":   "PLO",
	"wsop":  "WSOP",
	"wsope": "WSOPE",
	"hcl":   "HCL",
	"pad":   "PAD",
	"ggm":   "GGM",
}

// Humanize 把 slug 转为可读标题：连字符/下划线转空格，Title Case，再做缩写修正
func Humanize(slug string) string {
	s := strings.NewReplacer("-", " ", "_", " ").Replace(strings.TrimSpace(slug))
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	caser := cases.Title(language.English)
	for i, w := range words {
		if fix, ok := lexicon[strings.ToLower(w)]; ok {
			words[i] = fix
			continue
		}
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}
