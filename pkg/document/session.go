// Package document tracks the loaded document and turns region selections
// into image captures.
package document

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/doclens/doclens/pkg/apperr"
	"github.com/doclens/doclens/pkg/db"
	"github.com/doclens/doclens/pkg/event"
)

// MinRegionSize is the smallest width and height of a usable selection in page pixels.
const MinRegionSize = 10.0

var (
	ErrNoDocument = errors.New("no document loaded")
	ErrNoRenderer = errors.New("no renderer attached")
)

// Renderer is the PDF rendering collaborator.
type Renderer interface {
	PageCount() int
	// RenderRegion rasterizes region of page (1-based) at scale and returns PNG bytes.
	RenderRegion(ctx context.Context, page int, scale float64, region db.Region) ([]byte, error)
}

// RegionCapture is a validated selection ready for analysis or remix.
type RegionCapture struct {
	Image  string    `json:"image"` // data: URI
	Page   int       `json:"page"`
	Region db.Region `json:"region"`
	Prompt string    `json:"prompt,omitempty"`
}

// Validate rejects selections smaller than MinRegionSize on either side and
// captures without image data or page.
func (rc RegionCapture) Validate() error {
	if rc.Region.Width < MinRegionSize || rc.Region.Height < MinRegionSize {
		return apperr.Validation("region_capture", "region %.0fx%.0f is smaller than %.0fx%.0f",
			rc.Region.Width, rc.Region.Height, MinRegionSize, MinRegionSize)
	}
	if strings.TrimSpace(rc.Image) == "" {
		return apperr.Validation("region_capture", "region has no image data")
	}
	if rc.Page <= 0 {
		return apperr.Validation("region_capture", "page %d out of range", rc.Page)
	}
	return nil
}

// Info describes the loaded document.
type Info struct {
	FileName    string  `json:"fileName"`
	PageCount   int     `json:"pageCount"`
	CurrentPage int     `json:"currentPage"`
	Scale       float64 `json:"scale"`
}

// Session holds the single loaded document.
type Session struct {
	mu       sync.RWMutex
	fileName string
	renderer Renderer
	pages    int
	page     int
	scale    float64
	emitter  *event.Emitter
}

func NewSession(emitter *event.Emitter) *Session {
	if emitter == nil {
		emitter = event.Global()
	}
	return &Session{emitter: emitter, scale: 1}
}

// Load replaces the current document. The renderer may be nil when the view
// layer renders pages itself and only sends captures.
func (s *Session) Load(fileName string, pageCount int, r Renderer) error {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return apperr.Validation("load_document", "file name is required")
	}
	if r != nil {
		pageCount = r.PageCount()
	}
	if pageCount <= 0 {
		return apperr.Validation("load_document", "document has no pages")
	}
	s.mu.Lock()
	s.fileName = fileName
	s.renderer = r
	s.pages = pageCount
	s.page = 1
	s.scale = 1
	s.mu.Unlock()

	s.emitter.Emit(event.DocumentLoadedEvent{FileName: fileName, PageCount: pageCount})
	return nil
}

func (s *Session) Info() (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fileName == "" {
		return Info{}, false
	}
	return Info{FileName: s.fileName, PageCount: s.pages, CurrentPage: s.page, Scale: s.scale}, true
}

func (s *Session) FileName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileName
}

// SetPage moves to page, which must be within [1, PageCount].
func (s *Session) SetPage(page int) error {
	s.mu.Lock()
	if s.fileName == "" {
		s.mu.Unlock()
		return ErrNoDocument
	}
	if page < 1 || page > s.pages {
		s.mu.Unlock()
		return apperr.Validation("set_page", "page %d out of range 1..%d", page, s.pages)
	}
	s.page = page
	s.mu.Unlock()

	s.emitter.Emit(event.PageChangedEvent{Page: page})
	return nil
}

// SetScale sets the render scale, clamped to [0.5, 3].
func (s *Session) SetScale(scale float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scale = min(max(scale, 0.5), 3)
	return s.scale
}

// Capture renders region of the current page through the renderer.
func (s *Session) Capture(ctx context.Context, region db.Region, prompt string) (RegionCapture, error) {
	s.mu.RLock()
	r, page, scale, loaded := s.renderer, s.page, s.scale, s.fileName != ""
	s.mu.RUnlock()
	if !loaded {
		return RegionCapture{}, ErrNoDocument
	}
	probe := RegionCapture{Image: "pending", Page: page, Region: region}
	if err := probe.Validate(); err != nil {
		return RegionCapture{}, err
	}
	if r == nil {
		return RegionCapture{}, ErrNoRenderer
	}
	png, err := r.RenderRegion(ctx, page, scale, region)
	if err != nil {
		return RegionCapture{}, fmt.Errorf("render region on page %d: %w", page, err)
	}
	return RegionCapture{
		Image:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Page:   page,
		Region: region,
		Prompt: strings.TrimSpace(prompt),
	}, nil
}
