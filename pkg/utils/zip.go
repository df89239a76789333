package utils

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FileEntry ZIP 文件条目，Value 以缩进 JSON 写入
type FileEntry struct {
	Name  string
	Value any
}

// CreateZip 创建 ZIP 压缩包，modified 为条目的修改时间
func CreateZip(entries []FileEntry, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, entry := range entries {
		data, err := json.MarshalIndent(entry.Value, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("序列化ZIP条目 %s 失败: %w", entry.Name, err)
		}
		f, err := w.CreateHeader(&zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("创建ZIP条目 %s 失败: %w", entry.Name, err)
		}
		if _, err := f.Write(data); err != nil {
			return nil, fmt.Errorf("写入ZIP条目 %s 失败: %w", entry.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("关闭ZIP文件失败: %w", err)
	}

	return buf.Bytes(), nil
}
