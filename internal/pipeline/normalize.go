// Package pipeline 实现了知识库文档的向量化流程：文本清洗、分块、向量化、写入与状态跟踪。
package pipeline

import (
	"strings"
	"unicode"
)

// NormalizeText 清洗从 PDF/DOCX 等文件中提取出的原始文本。
// 去除 NUL 字节、非法 UTF-8 与控制字符，行内空白折叠为单个空格，
// 连续空行最多保留一个，最后去除首尾空白。空输入返回空字符串。
func NormalizeText(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ToValidUTF8(raw, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			return -1
		}
		return r
	}, s)

	var b strings.Builder
	b.Grow(len(s))
	blank := 0
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
		blank = 0
	}
	return b.String()
}
