package nas

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

var (
	// ErrOutsideRoot 请求路径越出 NAS 根目录
	ErrOutsideRoot = errors.New("path is outside the NAS root")
	// ErrNotFound 目录不存在
	ErrNotFound = errors.New("folder not found")
	// ErrNotConfigured 未配置 NAS 根目录
	ErrNotConfigured = errors.New("nas root is not configured")
)

const treeCacheKey = "tree"

// Folder 目录树节点
type Folder struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"` // 相对根目录，根为 "/"
	FileCount   int       `json:"file_count"`
	FolderCount int       `json:"folder_count"`
	Children    []*Folder `json:"children"`
}

// File 目录中的视频文件
type File struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	SizeMB     float64   `json:"size_mb"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Listing 单目录文件列表
type Listing struct {
	Path  string `json:"path"`
	Total int    `json:"total"`
	Files []File `json:"files"`
}

// Service 只读 NAS 浏览，目录树与列表带 TTL 缓存
type Service struct {
	root     string
	maxDepth int
	cache    *cache.Cache
	logger   *logrus.Logger
}

// NewService root 为空时所有查询返回 ErrNotConfigured
func NewService(root string, maxDepth int, ttl time.Duration, logger *logrus.Logger) *Service {
	if maxDepth <= 0 {
		maxDepth = 4
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	abs := ""
	if root != "" {
		if a, err := filepath.Abs(root); err == nil {
			abs = a
		} else {
			abs = filepath.Clean(root)
		}
	}
	return &Service{
		root:     abs,
		maxDepth: maxDepth,
		// 不启动 janitor 协程，过期项在读取时判定
		cache:  cache.New(ttl, 0),
		logger: logger,
	}
}

// Root 根目录绝对路径
func (s *Service) Root() string { return s.root }

// Resolve 把相对路径解析为根目录下的绝对路径，拒绝越界。
// 还会按符号链接解析后的真实位置再校验一次，指向根目录之外的链接同样越界
func (s *Service) Resolve(rel string) (string, error) {
	if s.root == "" {
		return "", ErrNotConfigured
	}
	rel = strings.ReplaceAll(strings.TrimSpace(rel), `\`, "/")
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return "", ErrOutsideRoot
		}
	}
	abs := filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	if !within(s.root, abs) {
		return "", ErrOutsideRoot
	}

	target, err := realPath(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	realRoot, err := realPath(s.root)
	if err != nil {
		realRoot = s.root
	}
	if !within(realRoot, target) {
		s.logger.WithFields(logrus.Fields{"path": rel, "target": target}).Warn("拒绝指向 NAS 根目录之外的符号链接")
		return "", ErrOutsideRoot
	}
	return abs, nil
}

// realPath 解析符号链接；路径不存在时解析最近的已存在祖先再拼回剩余部分
func realPath(p string) (string, error) {
	var rest []string
	for {
		target, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{target}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

// within target 是否为 root 本身或其子路径
func within(root, target string) bool {
	r, err := filepath.Rel(root, target)
	return err == nil && r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator))
}

func (s *Service) relPath(abs string) string {
	r, err := filepath.Rel(s.root, abs)
	if err != nil || r == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(r)
}

// Folders 返回目录树（深度受 max_depth 限制）
func (s *Service) Folders(ctx context.Context) (*Folder, error) {
	if s.root == "" {
		return nil, ErrNotConfigured
	}
	if cached, ok := s.cache.Get(treeCacheKey); ok {
		return cached.(*Folder), nil
	}
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.root)
	}
	root := &Folder{Name: filepath.Base(s.root), Path: "/"}
	if err := s.buildTree(ctx, s.root, root, 0); err != nil {
		return nil, err
	}
	s.cache.Set(treeCacheKey, root, cache.DefaultExpiration)
	return root, nil
}

func (s *Service) buildTree(ctx context.Context, dir string, node *Folder, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.WithError(err).WithField("dir", dir).Warn("读取目录失败")
		return nil
	}
	node.Children = []*Folder{}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			node.FolderCount++
			if depth+1 > s.maxDepth {
				continue
			}
			child := &Folder{Name: name, Path: s.relPath(filepath.Join(dir, name))}
			if err := s.buildTree(ctx, filepath.Join(dir, name), child, depth+1); err != nil {
				return err
			}
			node.Children = append(node.Children, child)
			continue
		}
		if IsVideo(name) {
			node.FileCount++
		}
	}
	sort.Slice(node.Children, func(i, j int) bool { return node.Children[i].Name < node.Children[j].Name })
	return nil
}

// Files 列出某个目录下的视频文件（不递归）
func (s *Service) Files(ctx context.Context, rel string) (*Listing, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	key := "files:" + abs
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Listing), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}
	listing := &Listing{Path: s.relPath(abs), Files: []File{}}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !IsVideo(name) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		listing.Files = append(listing.Files, File{
			Name:       name,
			Path:       s.relPath(filepath.Join(abs, name)),
			SizeBytes:  fi.Size(),
			SizeMB:     float64(fi.Size()*100/(1<<20)) / 100,
			ModifiedAt: fi.ModTime().UTC(),
		})
	}
	sort.Slice(listing.Files, func(i, j int) bool { return listing.Files[i].Name < listing.Files[j].Name })
	listing.Total = len(listing.Files)
	s.cache.Set(key, listing, cache.DefaultExpiration)
	return listing, nil
}

// Invalidate 清空缓存（对账扫描后调用）
func (s *Service) Invalidate() {
	s.cache.Flush()
}
