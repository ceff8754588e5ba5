package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doclens/doclens/pkg/models"
	"github.com/doclens/doclens/pkg/utils"
)

var (
	ErrCommandNotFound = errors.New("command not found")
	ErrBuiltinCommand  = errors.New("built-in commands cannot be deleted")
)

// CommandService manages the analysis command library in memory with JSON
// file persistence. The library is seeded with the built-in commands when no
// file exists yet.
type CommandService struct {
	mu       sync.RWMutex
	store    map[string]*models.AnalysisCommand
	order    []string
	dataFile string
	logger   *slog.Logger
}

// NewCommandService loads ~/.doclens/commands.json.
func NewCommandService() *CommandService {
	homeDir, _ := os.UserHomeDir()
	return NewCommandServiceAt(filepath.Join(homeDir, ".doclens", "commands.json"))
}

// NewCommandServiceAt loads (or seeds) the library stored at dataFile.
func NewCommandServiceAt(dataFile string) *CommandService {
	_ = os.MkdirAll(filepath.Dir(dataFile), 0755)
	svc := &CommandService{
		store:    make(map[string]*models.AnalysisCommand),
		dataFile: dataFile,
		logger:   utils.GetLogger(),
	}
	if err := svc.load(); err != nil {
		svc.logger.Warn("Failed to load command library, using defaults", "file", dataFile, "error", err)
		svc.seed()
	}
	return svc
}

func (s *CommandService) seed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.store = make(map[string]*models.AnalysisCommand)
	s.order = s.order[:0]
	for i, cmd := range models.DefaultCommands() {
		cmd.Order = i
		cmd.UpdatedAt = now
		c := cmd
		s.store[c.ID] = &c
		s.order = append(s.order, c.ID)
	}
}

func (s *CommandService) load() error {
	data, err := os.ReadFile(s.dataFile)
	if os.IsNotExist(err) {
		s.seed()
		return nil
	}
	if err != nil {
		return err
	}
	var list []models.AnalysisCommand
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Order < list[j].Order })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = make(map[string]*models.AnalysisCommand, len(list))
	s.order = make([]string, 0, len(list))
	for i := range list {
		cmd := list[i]
		if _, dup := s.store[cmd.ID]; dup || cmd.ID == "" {
			continue
		}
		s.store[cmd.ID] = &cmd
		s.order = append(s.order, cmd.ID)
	}
	return nil
}

func (s *CommandService) save() error {
	s.mu.RLock()
	list := make([]models.AnalysisCommand, 0, len(s.order))
	for i, id := range s.order {
		if c, ok := s.store[id]; ok {
			cc := *c
			cc.Order = i
			list = append(list, cc)
		}
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.dataFile, data, 0644)
}

func (s *CommandService) List() []*models.AnalysisCommand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]*models.AnalysisCommand, 0, len(s.order))
	for i, id := range s.order {
		if c, ok := s.store[id]; ok {
			cc := cloneCommand(c)
			cc.Order = i
			res = append(res, cc)
		}
	}
	return res
}

func (s *CommandService) Get(id string) (*models.AnalysisCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.store[id]
	if !ok {
		return nil, ErrCommandNotFound
	}
	cc := cloneCommand(c)
	for i, oid := range s.order {
		if oid == id {
			cc.Order = i
			break
		}
	}
	return cc, nil
}

func (s *CommandService) Create(req *models.CreateCommandRequest) (*models.AnalysisCommand, error) {
	if strings.TrimSpace(req.Label) == "" || strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("label and prompt required")
	}
	cmd := &models.AnalysisCommand{
		ID:        uuid.New().String(),
		Label:     strings.TrimSpace(req.Label),
		Prompt:    strings.TrimSpace(req.Prompt),
		Tags:      append([]string{}, req.Tags...),
		UpdatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	cmd.Order = len(s.order)
	s.store[cmd.ID] = cmd
	s.order = append(s.order, cmd.ID)
	s.mu.Unlock()

	if err := s.save(); err != nil {
		// rollback
		s.mu.Lock()
		delete(s.store, cmd.ID)
		s.order = removeID(s.order, cmd.ID)
		s.mu.Unlock()
		return nil, err
	}
	s.logger.Info("Command created", "id", cmd.ID, "label", cmd.Label)
	return cloneCommand(cmd), nil
}

func (s *CommandService) Update(id string, req *models.UpdateCommandRequest) (*models.AnalysisCommand, error) {
	s.mu.Lock()
	cmd, ok := s.store[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrCommandNotFound
	}
	if (req.Label != nil && strings.TrimSpace(*req.Label) == "") || (req.Prompt != nil && strings.TrimSpace(*req.Prompt) == "") {
		s.mu.Unlock()
		return nil, errors.New("label and prompt cannot be empty")
	}
	old := cloneCommand(cmd)
	if req.Label != nil {
		cmd.Label = strings.TrimSpace(*req.Label)
	}
	if req.Prompt != nil {
		cmd.Prompt = strings.TrimSpace(*req.Prompt)
	}
	if req.Tags != nil {
		cmd.Tags = append([]string{}, (*req.Tags)...)
	}
	cmd.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.save(); err != nil {
		s.mu.Lock()
		s.store[id] = old
		s.mu.Unlock()
		return nil, err
	}
	return s.Get(id)
}

func (s *CommandService) Delete(id string) error {
	s.mu.Lock()
	cmd, ok := s.store[id]
	if !ok {
		s.mu.Unlock()
		return ErrCommandNotFound
	}
	if cmd.Builtin {
		s.mu.Unlock()
		return ErrBuiltinCommand
	}
	oldOrder := append([]string{}, s.order...)
	delete(s.store, id)
	s.order = removeID(s.order, id)
	s.mu.Unlock()

	if err := s.save(); err != nil {
		s.mu.Lock()
		s.store[id] = cmd
		s.order = oldOrder
		s.mu.Unlock()
		return err
	}
	return nil
}

// Reorder moves the given ids to the front in the given order. Ids not
// listed keep their relative order after them.
func (s *CommandService) Reorder(ids []string) ([]*models.AnalysisCommand, error) {
	s.mu.Lock()
	for _, id := range ids {
		if _, ok := s.store[id]; !ok {
			s.mu.Unlock()
			return nil, errors.New("invalid id in reorder list")
		}
	}
	oldOrder := append([]string{}, s.order...)
	seen := map[string]struct{}{}
	newOrder := make([]string, 0, len(s.order))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			newOrder = append(newOrder, id)
		}
	}
	for _, id := range s.order {
		if _, ok := seen[id]; !ok {
			newOrder = append(newOrder, id)
		}
	}
	s.order = newOrder
	s.mu.Unlock()

	if err := s.save(); err != nil {
		s.mu.Lock()
		s.order = oldOrder
		s.mu.Unlock()
		return nil, err
	}
	return s.List(), nil
}

func removeID(ids []string, id string) []string {
	for i, oid := range ids {
		if oid == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func cloneCommand(c *models.AnalysisCommand) *models.AnalysisCommand {
	if c == nil {
		return nil
	}
	cc := *c
	cc.Tags = append([]string{}, c.Tags...)
	return &cc
}
