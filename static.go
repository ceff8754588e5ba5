package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/doclens/doclens/pkg/utils"
)

// attachStatic serves a built web viewer from dir, or from web/dist under the
// working directory when dir is empty. Without an index.html nothing is
// registered and the server is API only.
//
//  1. GET/HEAD requests outside /api are matched against the files
//  2. paths without a '.' that accept text/html get index.html (SPA routes)
//  3. everything else passes through
func attachStatic(engine *gin.Engine, dir string) {
	distFS := resolveFrontendFS(dir)
	if distFS == nil {
		return
	}
	index, err := fs.ReadFile(distFS, "index.html")
	if err != nil {
		return
	}
	modTime := time.Now()
	if fi, statErr := fs.Stat(distFS, "index.html"); statErr == nil {
		modTime = fi.ModTime()
	}
	sum := sha256.Sum256(index)
	etag := `W/"` + hex.EncodeToString(sum[:8]) + `"`
	utils.GetLogger().Info("Serving web viewer", "dir", dir)

	fileServer := http.FileServer(http.FS(distFS))

	engine.Use(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			return
		}
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api") || p == "/healthz" {
			return
		}
		trimmed := strings.TrimPrefix(p, "/")
		if trimmed == "" {
			serveIndex(c, index, modTime, etag)
			return
		}
		if fi, err := fs.Stat(distFS, trimmed); err == nil {
			if fi.IsDir() {
				serveIndex(c, index, modTime, etag)
				return
			}
			fileServer.ServeHTTP(c.Writer, c.Request)
			c.Abort()
			return
		}
		if !strings.Contains(trimmed, ".") && acceptHTML(c.Request.Header.Get("Accept")) {
			serveIndex(c, index, modTime, etag)
		}
	})
}

func resolveFrontendFS(dir string) fs.FS {
	candidates := []string{dir}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil
		}
		candidates = []string{filepath.Join(wd, "web", "dist"), filepath.Join(wd, "web")}
	}
	for _, d := range candidates {
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			dfs := os.DirFS(d)
			if _, err := fs.Stat(dfs, "index.html"); err == nil {
				return dfs
			}
		}
	}
	return nil
}

func serveIndex(c *gin.Context, data []byte, modTime time.Time, etag string) {
	if c.Request.Header.Get("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		c.Abort()
		return
	}
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	c.Header("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(c.Writer, c.Request, "index.html", modTime, bytes.NewReader(data))
	c.Abort()
}

// acceptHTML reports whether the Accept header asks for an HTML page.
func acceptHTML(accept string) bool {
	// Webviews often send no Accept header on navigation.
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		p := strings.TrimSpace(strings.ToLower(part))
		if strings.HasPrefix(p, "text/html") || strings.HasPrefix(p, "application/xhtml+xml") {
			return true
		}
	}
	return false
}
