// Package extract 从文章页 HTML 中尽力提取正文、配图与作者。
//
// 页面结构随时可能调整，所有提取都是“尽力而为”：任何解析失败都返回空结果，不向调用方报错。
package extract

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/LJTian/Topline/internal/registry"
)

// Result 三个字段相互独立，空字符串表示缺失
type Result struct {
	Content  string
	ImageURL string
	Author   string
}

// imageHints 判断 <img> 是否可能是文章主图（基于原始 src 文本）
var imageHints = []string{"article", "news", "1200", "800", "large", "main"}

// 懒加载图片常见的属性名，按顺序尝试
var srcAttrs = []string{"src", "data-src", "data-lazy-src", "data-original"}

// Extract 解析 html；pageURL 非空时把相对图片地址补全为绝对地址
func Extract(html string, sel registry.Selectors, pageURL string) Result {
	return FromReader(strings.NewReader(html), sel, pageURL)
}

// FromReader 同 Extract，从 r 读取 HTML
func FromReader(r io.Reader, sel registry.Selectors, pageURL string) (res Result) {
	// 选择器异常不应影响调用方
	defer func() {
		if recover() != nil {
			res = Result{}
		}
	}()

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Result{}
	}
	return FromDocument(doc, sel, pageURL)
}

// FromDocument 对已解析的文档执行提取
func FromDocument(doc *goquery.Document, sel registry.Selectors, pageURL string) Result {
	var base *url.URL
	if pageURL != "" {
		base, _ = url.Parse(pageURL)
	}

	return Result{
		Content:  firstText(doc.Selection, sel.Content),
		ImageURL: resolve(base, imageURL(doc, sel.Image)),
		Author:   firstText(doc.Selection, sel.Author),
	}
}

// imageURL 按固定顺序尝试：选择器 → og:image → twitter:image → 文档中第一张“像主图”的 <img>
func imageURL(doc *goquery.Document, selector string) string {
	chain := []func() string{
		func() string { return selectorImage(doc, selector) },
		func() string {
			return firstNonEmpty(
				metaContent(doc, "property", "og:image"),
				metaContent(doc, "property", "og:image:secure_url"),
			)
		},
		func() string {
			return firstNonEmpty(
				metaContent(doc, "name", "twitter:image"),
				metaContent(doc, "property", "twitter:image"),
				metaContent(doc, "name", "twitter:image:src"),
			)
		},
		func() string { return hintedImage(doc) },
	}
	for _, step := range chain {
		if v := step(); v != "" {
			return v
		}
	}
	return ""
}

func selectorImage(doc *goquery.Document, selector string) string {
	if strings.TrimSpace(selector) == "" {
		return ""
	}
	return imgSource(doc.Find(selector).First())
}

func imgSource(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	for _, attr := range srcAttrs {
		if v := usable(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	// srcset: 取第一个候选
	if srcset := strings.TrimSpace(s.AttrOr("srcset", "")); srcset != "" {
		first := strings.TrimSpace(strings.Split(srcset, ",")[0])
		if fields := strings.Fields(first); len(fields) > 0 {
			return usable(fields[0])
		}
	}
	return ""
}

func hintedImage(doc *goquery.Document) string {
	var found string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src := usable(s.AttrOr("src", ""))
		if src == "" {
			return true
		}
		lower := strings.ToLower(src)
		for _, h := range imageHints {
			if strings.Contains(lower, h) {
				found = src
				return false
			}
		}
		return true
	})
	return found
}

func metaContent(doc *goquery.Document, attr, val string) string {
	v, _ := doc.Find(`meta[` + attr + `="` + val + `"]`).First().Attr("content")
	return usable(v)
}

func firstText(s *goquery.Selection, selector string) string {
	if strings.TrimSpace(selector) == "" {
		return ""
	}
	return CollapseSpace(s.Find(selector).First().Text())
}

// CollapseSpace 合并连续空白并去掉首尾空白
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripHTML 去掉 HTML 标签，返回空白合并后的纯文本
func StripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return CollapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return CollapseSpace(s)
	}
	return CollapseSpace(doc.Text())
}

// FirstImage 返回 HTML 片段中第一张图片地址（用于订阅摘要里内嵌的图片）
func FirstImage(fragment string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return imgSource(doc.Find("img").First())
}

func usable(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(strings.ToLower(v), "data:") {
		return ""
	}
	return v
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
