package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

type client struct {
	server     string
	apiKey     string
	httpClient *http.Client
}

func newClient(opts *options) *client {
	return &client{
		server:     strings.TrimRight(opts.server, "/"),
		apiKey:     opts.apiKey,
		httpClient: &http.Client{Timeout: opts.timeout},
	}
}

// print 发送请求并将格式化后的 JSON 响应写到标准输出，非 2xx 状态返回错误。
func (c *client) print(cmd *cobra.Command, method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), method, c.server+escapePath(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 失败: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("服务返回 %s: %s", resp.Status, strings.TrimSpace(pretty.String()))
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}

// escapePath 对路径中的每一段做转义，查询串保持不变。
func escapePath(path string) string {
	p, query, _ := strings.Cut(path, "?")
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	out := strings.Join(segments, "/")
	if query != "" {
		values, err := url.ParseQuery(query)
		if err == nil {
			out += "?" + values.Encode()
		}
	}
	return out
}
