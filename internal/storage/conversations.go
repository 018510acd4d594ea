// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ksaregtech/regtech-tui/internal/model"
	"github.com/ksaregtech/regtech-tui/internal/util"
)

// DefaultMaxConversations is the retention limit used when none is configured.
const DefaultMaxConversations = 100

const (
	convExt       = ".json"
	previewLength = 80
	convDirPerm   = 0700
	convFilePerm  = 0600
)

// ConversationMeta is the listing view of a saved conversation.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"`
}

func metaFor(conv *model.Conversation) ConversationMeta {
	m := ConversationMeta{
		ID:           conv.ID,
		Title:        conv.GetTitle(),
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		MessageCount: len(conv.Messages),
	}
	if first := conv.FirstUserMessage(); first != nil {
		m.Preview = first.Preview(previewLength)
	}
	return m
}

// byRecency orders metas most recently updated first, ties broken by ID.
func byRecency(a, b ConversationMeta) int {
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// =============================================================================
// STORE
// =============================================================================

// indexEntry caches a file's meta until its size or mtime changes.
type indexEntry struct {
	modTime time.Time
	size    int64
	meta    ConversationMeta
}

// ConversationStore keeps one JSON document per conversation in BaseDir.
// Listing decodes a file only when it changed since the previous listing.
type ConversationStore struct {
	BaseDir string

	// MaxConversations caps the number of files kept (0 = unlimited); the
	// least recently updated are removed on Save.
	MaxConversations int

	mu    sync.Mutex
	index map[string]indexEntry
}

// NewConversationStore opens the store under dataDir/conversations.
func NewConversationStore(dataDir string) (*ConversationStore, error) {
	return NewConversationStoreWithDir(filepath.Join(dataDir, "conversations"))
}

// NewConversationStoreWithDir opens a store rooted at baseDir.
func NewConversationStoreWithDir(baseDir string) (*ConversationStore, error) {
	if err := os.MkdirAll(baseDir, convDirPerm); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	return &ConversationStore{
		BaseDir:          baseDir,
		MaxConversations: DefaultMaxConversations,
		index:            make(map[string]indexEntry),
	}, nil
}

func (s *ConversationStore) cache() map[string]indexEntry {
	if s.index == nil {
		s.index = make(map[string]indexEntry)
	}
	return s.index
}

func (s *ConversationStore) path(id string) string {
	return filepath.Join(s.BaseDir, id+convExt)
}

// =============================================================================
// READ / WRITE
// =============================================================================

// Save writes conv, filling in a missing ID or timestamps first.
func (s *ConversationStore) Save(conv *model.Conversation) error {
	if conv == nil {
		return errors.New("save conversation: nil conversation")
	}
	if conv.ID == "" {
		conv.ID = model.NewConversation().ID
	}
	if err := validateID(conv.ID); err != nil {
		return err
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(conv.ID)
	err := util.AtomicWrite(path, convFilePerm, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(conv)
	})
	if err != nil {
		return fmt.Errorf("write conversation %s: %w", conv.ID, err)
	}
	if info, err := os.Stat(path); err == nil {
		s.cache()[conv.ID] = indexEntry{modTime: info.ModTime(), size: info.Size(), meta: metaFor(conv)}
	}

	if s.MaxConversations > 0 {
		s.prune()
	}
	return nil
}

// prune drops the oldest conversations beyond MaxConversations.
func (s *ConversationStore) prune() {
	metas, err := s.scan()
	if err != nil {
		return
	}
	for len(metas) > s.MaxConversations {
		victim := metas[len(metas)-1]
		metas = metas[:len(metas)-1]
		s.remove(victim.ID)
	}
}

// Load reads the conversation with the exact ID.
func (s *ConversationStore) Load(id string) (*model.Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *ConversationStore) read(id string) (*model.Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ConversationError{Message: ErrConversationNotFound.Message, ID: id}
	}
	if err != nil {
		return nil, err
	}
	conv := &model.Conversation{}
	if err := json.Unmarshal(data, conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []*model.Message{}
	}
	return conv, nil
}

// Resolve accepts a full ID, an ID prefix, or a prefix of the ID without its
// "conv_" marker (the form ShortID prints).
func (s *ConversationStore) Resolve(idOrPrefix string) (*model.Conversation, error) {
	conv, err := s.Load(idOrPrefix)
	if !errors.Is(err, ErrConversationNotFound) {
		return conv, err
	}

	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, m := range metas {
		if strings.HasPrefix(m.ID, idOrPrefix) || strings.HasPrefix(m.ID, "conv_"+idOrPrefix) {
			matches = append(matches, m.ID)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &ConversationError{Message: ErrConversationNotFound.Message, ID: idOrPrefix}
	case 1:
		return s.Load(matches[0])
	default:
		return nil, &ConversationError{Message: ErrAmbiguousID.Message, ID: idOrPrefix}
	}
}

// =============================================================================
// LISTING AND SEARCH
// =============================================================================

// List returns the saved conversations, most recently updated first.
// Unreadable files are left out.
func (s *ConversationStore) List() ([]ConversationMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan()
}

func (s *ConversationStore) scan() ([]ConversationMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []ConversationMeta{}, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(entries))
	metas := make([]ConversationMeta, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != convExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(name, convExt)
		seen[id] = true

		cached, ok := s.cache()[id]
		if !ok || !cached.modTime.Equal(info.ModTime()) || cached.size != info.Size() {
			conv, err := s.read(id)
			if err != nil {
				delete(s.index, id)
				continue
			}
			cached = indexEntry{modTime: info.ModTime(), size: info.Size(), meta: metaFor(conv)}
			s.index[id] = cached
		}
		metas = append(metas, cached.meta)
	}
	for id := range s.index {
		if !seen[id] {
			delete(s.index, id)
		}
	}

	slices.SortFunc(metas, byRecency)
	return metas, nil
}

// Search matches query against titles and previews, ignoring case.
func (s *ConversationStore) Search(query string) ([]ConversationMeta, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	return slices.DeleteFunc(metas, func(m ConversationMeta) bool {
		return !strings.Contains(strings.ToLower(m.Title), q) &&
			!strings.Contains(strings.ToLower(m.Preview), q)
	}), nil
}

// SearchMessages matches query against every message body, ignoring case.
// An empty query lists everything.
func (s *ConversationStore) SearchMessages(query string) ([]ConversationMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas, err := s.scan()
	if err != nil || query == "" {
		return metas, err
	}
	q := strings.ToLower(query)
	return slices.DeleteFunc(metas, func(m ConversationMeta) bool {
		conv, err := s.read(m.ID)
		if err != nil {
			return true
		}
		return !slices.ContainsFunc(conv.Messages, func(msg *model.Message) bool {
			return strings.Contains(strings.ToLower(msg.Content), q)
		})
	}), nil
}

// =============================================================================
// DELETION
// =============================================================================

// Delete removes one conversation.
func (s *ConversationStore) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.remove(id)
	if errors.Is(err, fs.ErrNotExist) {
		return &ConversationError{Message: ErrConversationNotFound.Message, ID: id}
	}
	return err
}

func (s *ConversationStore) remove(id string) error {
	delete(s.index, id)
	return os.Remove(s.path(id))
}

// Clear removes every saved conversation.
func (s *ConversationStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.BaseDir, "*"+convExt))
	if err != nil {
		return err
	}
	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	clear(s.index)
	return errors.Join(errs...)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound matches (errors.Is) any lookup miss.
	ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

	// ErrAmbiguousID matches a prefix that selects several conversations.
	ErrAmbiguousID = &ConversationError{Message: "conversation id prefix is ambiguous"}
)

// ConversationError is a store failure tied to one ID. Two errors are the
// same kind (errors.Is) when their messages match.
type ConversationError struct {
	Message string
	ID      string
}

func (e *ConversationError) Error() string {
	if e.ID == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %q", e.Message, e.ID)
}

func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	return ok && t.Message == e.Message
}

// validateID rejects IDs that would leave BaseDir.
func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return &ConversationError{Message: "invalid conversation id", ID: id}
	}
	return nil
}
