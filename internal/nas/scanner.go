package nas

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"CatalogSync/internal/model"

	"github.com/sirupsen/logrus"
)

// VideoExtensions 扫描器认可的视频扩展名
var VideoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".mxf": {}, ".avi": {}, ".mkv": {}, ".wmv": {}, ".m4v": {}, ".ts": {},
}

// IsVideo 按扩展名判断（不区分大小写）
func IsVideo(name string) bool {
	_, ok := VideoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Scanner 递归扫描归档目录，产出文件描述
type Scanner struct {
	logger *logrus.Logger
}

func NewScanner(logger *logrus.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Scan 遍历 root 下所有视频文件。隐藏目录与 dotfile 跳过；
// ._ 影子文件原样输出，由规范化阶段丢弃并计数。
func (s *Scanner) Scan(ctx context.Context, root string) ([]model.FileDescriptor, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	var out []model.FileDescriptor
	walked := 0
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == absRoot {
				return walkErr
			}
			s.logger.WithError(walkErr).WithField("path", p).Warn("扫描跳过不可读路径")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		walked++
		if walked%512 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		name := d.Name()
		if d.IsDir() {
			if p != absRoot && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(name, "._") {
			return nil
		}
		if !IsVideo(name) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			s.logger.WithError(err).WithField("path", p).Warn("读取文件信息失败")
			return nil
		}
		out = append(out, model.FileDescriptor{
			FileName:   name,
			Path:       filepath.ToSlash(p),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
			Extension:  strings.ToLower(filepath.Ext(name)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	s.logger.WithFields(logrus.Fields{"root": absRoot, "files": len(out)}).Info("NAS 扫描完成")
	return out, nil
}
