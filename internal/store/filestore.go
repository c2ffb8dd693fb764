package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"evoloop/internal/captree"
	"evoloop/internal/gene"
)

// Asset file names under the data root.
const (
	genesFile    = "genes.json"
	capsulesFile = "capsules.json"
	eventsFile   = "events.ndjson"
	treeFile     = "tree.json"
)

// Store is the narrow persistence boundary the pipeline depends on. Genes
// and the tree are read-modify-write snapshots; capsules and events are
// append-only.
type Store interface {
	LoadGenes() ([]*gene.Gene, error)
	SaveGenes(genes []*gene.Gene) error

	LoadCapsules() ([]*Capsule, error)
	AppendCapsule(c *Capsule) error

	LoadEvents() ([]Event, error)
	AppendEvent(e Event) error

	LoadTree() (*captree.Tree, error)
	SaveTree(t *captree.Tree) error

	// LoadDoc and SaveDoc persist small auxiliary documents (VFM weights,
	// personality state, PCEC state) as standalone JSON files. LoadDoc
	// reports false when the document is absent or unparsable.
	LoadDoc(name string, v any) (bool, error)
	SaveDoc(name string, v any) error
}

// FileStore persists every asset as JSON under a single data root. Stored
// JSON that fails to parse is treated as an empty collection: the pipeline
// stays resilient to partial writes at the cost of losing the damaged
// snapshot. Not safe for concurrent writers; the engine is single-writer.
type FileStore struct {
	root string
}

// NewFileStore creates the data root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("store: data root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the data root directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) path(name string) string {
	return filepath.Join(s.root, name)
}

// LoadGenes reads the gene catalogue; missing or corrupt files yield an
// empty catalogue.
func (s *FileStore) LoadGenes() ([]*gene.Gene, error) {
	var genes []*gene.Gene
	ok, err := readJSON(s.path(genesFile), &genes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return genes, nil
}

// SaveGenes writes the full gene catalogue snapshot.
func (s *FileStore) SaveGenes(genes []*gene.Gene) error {
	for _, g := range genes {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return writeJSON(s.path(genesFile), genes)
}

// LoadCapsules reads the capsule history in append order.
func (s *FileStore) LoadCapsules() ([]*Capsule, error) {
	var capsules []*Capsule
	ok, err := readJSON(s.path(capsulesFile), &capsules)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return capsules, nil
}

// AppendCapsule appends one capsule to the history. Capsules are never
// mutated after creation.
func (s *FileStore) AppendCapsule(c *Capsule) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("store: capsule id is required")
	}
	capsules, err := s.LoadCapsules()
	if err != nil {
		return err
	}
	capsules = append(capsules, c)
	return writeJSON(s.path(capsulesFile), capsules)
}

// LoadEvents reads the event log in append order, skipping unparsable lines.
func (s *FileStore) LoadEvents() ([]Event, error) {
	f, err := os.Open(s.path(eventsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue // damaged line, keep reading
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("store: scan event log: %w", err)
	}
	return events, nil
}

// AppendEvent appends one line to the event log. The log is the durable
// source of truth for audit ordering.
func (s *FileStore) AppendEvent(e Event) error {
	if e.ID == "" {
		return fmt.Errorf("store: event id is required")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}
	f, err := os.OpenFile(s.path(eventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

// LoadTree reads the capability tree, returning a fresh tree when the
// snapshot is missing or corrupt.
func (s *FileStore) LoadTree() (*captree.Tree, error) {
	var t captree.Tree
	ok, err := readJSON(s.path(treeFile), &t)
	if err != nil {
		return nil, err
	}
	if !ok || t.Root == nil || t.Nodes == nil {
		return captree.New(), nil
	}
	// The snapshot stores the root both as "root" and inside "nodes", so
	// unmarshalling yields two separate structs. Re-point the root at the
	// map entry or later growth through the node map never reaches it.
	root, present := t.Nodes[captree.RootID]
	if !present {
		return captree.New(), nil
	}
	t.Root = root
	return &t, nil
}

// SaveTree writes the full tree snapshot.
func (s *FileStore) SaveTree(t *captree.Tree) error {
	if t == nil {
		return fmt.Errorf("store: nil tree")
	}
	return writeJSON(s.path(treeFile), t)
}

// LoadDoc reads an auxiliary JSON document into v, reporting false when the
// document is absent or unparsable.
func (s *FileStore) LoadDoc(name string, v any) (bool, error) {
	ok, err := readJSON(s.path(name), v)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// SaveDoc writes an auxiliary JSON document.
func (s *FileStore) SaveDoc(name string, v any) error {
	return writeJSON(s.path(name), v)
}

// readJSON reads path into v, reporting false when the file is missing or
// its JSON is unparsable. Any other read failure is a real I/O problem and
// propagates instead of masquerading as an empty snapshot.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

// writeJSON writes via a temp file and rename so a crash mid-write leaves
// the previous snapshot intact.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
