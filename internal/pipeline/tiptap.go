package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// tiptapNode 是富文本编辑器（Tiptap/ProseMirror）JSON 文档中的节点。
type tiptapNode struct {
	Type    string       `json:"type"`
	Text    string       `json:"text,omitempty"`
	Content []tiptapNode `json:"content,omitempty"`
}

// textBlocks 中的节点只包含行内内容，各自输出为一个文本段落。
var textBlocks = map[string]bool{
	"paragraph": true,
	"heading":   true,
	"codeBlock": true,
}

// ExtractTiptapText 将编辑器 JSON 转为纯文本，块级节点之间以空行分隔，
// 使分块器能识别段落边界。空内容返回空字符串。
func ExtractTiptapText(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	var root tiptapNode
	if err := json.Unmarshal([]byte(content), &root); err != nil {
		return "", fmt.Errorf("解析编辑器内容失败: %w", err)
	}
	var blocks []string
	collectBlocks(root, &blocks)
	return strings.Join(blocks, "\n\n"), nil
}

func collectBlocks(n tiptapNode, out *[]string) {
	switch {
	case textBlocks[n.Type]:
		var b strings.Builder
		renderInline(n, &b)
		if s := strings.TrimSpace(b.String()); s != "" {
			*out = append(*out, s)
		}
	case n.Type == "text":
		if s := strings.TrimSpace(n.Text); s != "" {
			*out = append(*out, s)
		}
	default:
		for _, child := range n.Content {
			collectBlocks(child, out)
		}
	}
}

func renderInline(n tiptapNode, b *strings.Builder) {
	for _, child := range n.Content {
		switch child.Type {
		case "text":
			b.WriteString(child.Text)
		case "hardBreak":
			b.WriteByte('\n')
		default:
			renderInline(child, b)
		}
	}
}
