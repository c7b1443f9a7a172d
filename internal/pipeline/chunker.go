package pipeline

import "unicode"

const (
	DefaultChunkSizeTokens    = 1000
	DefaultChunkOverlapTokens = 200
	DefaultCharsPerToken      = 4
)

// boundaryLevels 按优先级排列的切分边界：段落、换行、句末标点、空格。
// 都找不到时在长度上限处直接截断。
var boundaryLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", "。", "！", "？"},
	{" "},
}

// Chunk 是文本中的一个连续片段。Start/End 为 rune 偏移，Content == text[Start:End]。
type Chunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// Chunker 按近似 token 数切分文本，相邻分块之间保留重叠。
type Chunker struct {
	size    int // 字符数
	overlap int
}

// NewChunker 创建分块器。参数单位为近似 token，按 charsPerToken 换算为字符数。
// 非法参数回退为默认值；overlap 不小于 size 时不保留重叠。
func NewChunker(chunkSizeTokens, overlapTokens, charsPerToken int) *Chunker {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	if chunkSizeTokens <= 0 {
		chunkSizeTokens = DefaultChunkSizeTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	c := &Chunker{
		size:    chunkSizeTokens * charsPerToken,
		overlap: overlapTokens * charsPerToken,
	}
	if c.overlap >= c.size {
		c.overlap = 0
	}
	return c
}

// Size 返回分块的字符上限。
func (c *Chunker) Size() int { return c.size }

// Overlap 返回相邻分块的重叠字符数。
func (c *Chunker) Overlap() int { return c.overlap }

// Split 将文本切分为有序分块。空文本返回 nil，短于上限的文本返回单个分块。
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for {
		end := n
		if start+c.size < n {
			end = c.cut(runes, start, start+c.size)
		}
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Content: string(runes[start:end]),
			Start:   start,
			End:     end,
		})
		if end == n {
			return chunks
		}
		start = c.nextStart(runes, start, end)
	}
}

// cut 在 (start, limit] 内寻找优先级最高的边界，同级取最靠后的位置。
// 切点必须使分块长度大于 overlap，保证下一个分块的起点向前推进。
func (c *Chunker) cut(runes []rune, start, limit int) int {
	minCut := start + c.overlap + 1
	for _, level := range boundaryLevels {
		for p := limit; p >= minCut; p-- {
			if endsWithAny(runes, start, p, level) {
				return p
			}
		}
	}
	return limit
}

// nextStart 计算下一个分块的起点：从 end 回退 overlap 个字符，再向后对齐到单词开头。
func (c *Chunker) nextStart(runes []rune, start, end int) int {
	if c.overlap == 0 {
		return end
	}
	s := end - c.overlap
	if s <= start {
		return end
	}
	for p := s; p < end; p++ {
		if unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p]) {
			return p
		}
	}
	return s
}

func endsWithAny(runes []rune, start, p int, seps []string) bool {
	for _, sep := range seps {
		sr := []rune(sep)
		if p-len(sr) < start {
			continue
		}
		match := true
		for i, r := range sr {
			if runes[p-len(sr)+i] != r {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
